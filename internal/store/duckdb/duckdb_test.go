package duckdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/store"
	"github.com/xtxerr/relayhist/internal/store/storetest"
)

func TestDuckDBStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestDuckDBStore_Persistence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "relayhist.duckdb")
	ctx := context.Background()
	rec := storetest.Records()[4]

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Store(ctx, rec); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Retrieve(ctx, history.FamilyClients, rec.Entity)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !got.History().Equal(rec.History()) {
		t.Errorf("history mismatch after reopen")
	}
}

func TestDuckDBStore_CancelledContext(t *testing.T) {
	s, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Store(ctx, storetest.Records()[0]); err == nil {
		t.Error("Store with cancelled context succeeded")
	}
}
