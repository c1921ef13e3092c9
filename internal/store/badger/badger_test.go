package badger

import (
	"context"
	"testing"

	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/store"
	"github.com/xtxerr/relayhist/internal/store/storetest"
)

func TestBadgerStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(Config{InMemory: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}

func TestBadgerStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	rec := storetest.Records()[3]

	s, err := New(Config{Path: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Store(ctx, rec); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = New(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Retrieve(ctx, history.FamilyWeights, rec.Entity)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if !got.History().Equal(rec.History()) {
		t.Errorf("history mismatch after reopen")
	}
}
