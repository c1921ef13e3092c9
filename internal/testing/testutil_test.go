package testing

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/store"
)

func TestGoroutineTest(t *testing.T) {
	gt := NewGoroutineTestWithTimeout(t, 5*time.Second)
	defer gt.Wait()

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		gt.Go(func() error {
			if i < 0 {
				return fmt.Errorf("unexpected negative index: %d", i)
			}
			n.Add(1)
			return nil
		})
	}

	gt.GoWithContext(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
			return nil
		}
	})
}

func TestWithTimeout(t *testing.T) {
	if err := WithTimeout(time.Second, func() error { return nil }); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := WithTimeout(10*time.Millisecond, func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestHours(t *testing.T) {
	obs := Uptime(Fingerprint, "2014-03-23 04:00:00", 3)
	if len(obs) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(obs))
	}
	if obs[0].Interval.Start != Time("2014-03-23 04:00:00") {
		t.Errorf("first start = %d", obs[0].Interval.Start)
	}
	if obs[0].Interval.End != obs[1].Interval.Start {
		t.Error("observations are not contiguous")
	}
	if obs[2].Family != history.FamilyUptime || obs[2].Entity != Fingerprint {
		t.Errorf("observation key = %s", obs[2].Key())
	}
}

func TestFaultyStore(t *testing.T) {
	ctx := context.Background()
	s := NewFaultyStore(store.NewMemory())
	defer s.Close()

	s.FailRetrieve(history.FamilyUptime, Fingerprint)
	if _, err := s.Retrieve(ctx, history.FamilyUptime, Fingerprint); err == nil {
		t.Error("expected injected retrieve failure")
	}
	if _, err := s.Retrieve(ctx, history.FamilyReadHistory, Fingerprint); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found for other record, got %v", err)
	}

	s.Heal()
	if _, err := s.Retrieve(ctx, history.FamilyUptime, Fingerprint); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found after heal, got %v", err)
	}
	if got := s.Retrieves.Load(); got != 3 {
		t.Errorf("Retrieves = %d, want 3", got)
	}
}
