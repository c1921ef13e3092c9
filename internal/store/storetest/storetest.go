// Package storetest runs the behaviour every store backend must share.
package storetest

import (
	"context"
	"slices"
	"testing"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
	"github.com/xtxerr/relayhist/internal/store"
)

const hour = int64(3_600_000)

// Records returns one populated record per family, with payloads chosen
// to catch lossy float or key encodings.
func Records() []*status.Record {
	base := int64(1_395_576_000_000)

	payloads := map[history.Family][]history.Payload{
		history.FamilyUptime:       {history.Counter{Value: 1}, history.Counter{Value: 3}},
		history.FamilyReadHistory:  {history.Counter{Value: 0.1 + 0.2}, history.Counter{Value: 9.87654321e12}},
		history.FamilyWriteHistory: {history.Counter{Value: 1e-9}, history.Counter{Value: 0}},
		history.FamilyWeights: {
			history.Vector{0.1, 0.2, 1.0 / 3, 2.0 / 3, 5e-7},
			history.Vector{0, 0, 0, 0, 1},
		},
		history.FamilyClients: {
			history.Counts{Total: 10.5},
			history.Counts{Total: 7, ByKey: map[string]float64{"country:de": 3, "transport:obfs4": 4, "version v4": 1.25}},
		},
	}

	var out []*status.Record
	for _, f := range history.AllFamilies() {
		rec := status.New(f, "9695DFC35FFEB861329B9F1AB04C46397020CE31")
		var intervals []history.Interval
		for i, p := range payloads[f] {
			start := base + int64(i)*3*hour
			intervals = append(intervals, history.Interval{Start: start, End: start + 2*hour + 1, Payload: p})
		}
		rec.Merge(intervals)
		out = append(out, rec)
	}
	return out
}

// Run exercises a backend. open must return a fresh, empty store; Run
// closes it.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("RoundTrip", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		for _, rec := range Records() {
			if err := s.Store(ctx, rec); err != nil {
				t.Fatalf("Store %s: %v", rec.Key(), err)
			}
		}
		for _, rec := range Records() {
			got, err := s.Retrieve(ctx, rec.Family, rec.Entity)
			if err != nil {
				t.Fatalf("Retrieve %s: %v", rec.Key(), err)
			}
			if got.Family != rec.Family || got.Entity != rec.Entity {
				t.Errorf("got %s, want %s", got.Key(), rec.Key())
			}
			if !got.History().Equal(rec.History()) {
				t.Errorf("%s: history mismatch\nwant %v\ngot  %v", rec.Key(), rec.History().Intervals(), got.History().Intervals())
			}
			if got.Dirty() {
				t.Errorf("%s: retrieved record is dirty", rec.Key())
			}
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		_, err := s.Retrieve(context.Background(), history.FamilyUptime, "missing")
		if !errors.IsNotFound(err) {
			t.Fatalf("Retrieve missing: got %v, want not found", err)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rec := status.New(history.FamilyUptime, "AAAA")
		rec.Merge([]history.Interval{{Start: 0, End: hour, Payload: history.Counter{Value: 1}}})
		if err := s.Store(ctx, rec); err != nil {
			t.Fatalf("Store: %v", err)
		}

		rec.Merge([]history.Interval{{Start: 5 * hour, End: 6 * hour, Payload: history.Counter{Value: 1}}})
		rec.History().Replace([]history.Interval{
			{Start: 0, End: hour, Payload: history.Counter{Value: 2}},
			{Start: 5 * hour, End: 6 * hour, Payload: history.Counter{Value: 1}},
		})
		if err := s.Store(ctx, rec); err != nil {
			t.Fatalf("Store again: %v", err)
		}

		got, err := s.Retrieve(ctx, history.FamilyUptime, "AAAA")
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if !got.History().Equal(rec.History()) {
			t.Errorf("got %v, want %v", got.History().Intervals(), rec.History().Intervals())
		}
	})

	t.Run("FamiliesAreSeparate", func(t *testing.T) {
		s := open(t)
		defer s.Close()
		ctx := context.Background()

		rec := status.New(history.FamilyReadHistory, "BBBB")
		rec.Merge([]history.Interval{{Start: 0, End: hour, Payload: history.Counter{Value: 42}}})
		if err := s.Store(ctx, rec); err != nil {
			t.Fatalf("Store: %v", err)
		}

		if _, err := s.Retrieve(ctx, history.FamilyWriteHistory, "BBBB"); !errors.IsNotFound(err) {
			t.Errorf("write/BBBB: got %v, want not found", err)
		}

		if l, ok := s.(store.Lister); ok {
			got, err := l.List(ctx, history.FamilyReadHistory)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if !slices.Equal(got, []string{"BBBB"}) {
				t.Errorf("List = %v, want [BBBB]", got)
			}
		}
	})

	t.Run("Closed", func(t *testing.T) {
		s := open(t)
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		rec := status.New(history.FamilyUptime, "CCCC")
		rec.Merge([]history.Interval{{Start: 0, End: hour, Payload: history.Counter{Value: 1}}})
		if err := s.Store(context.Background(), rec); err == nil {
			t.Error("Store after Close succeeded")
		}
	})
}
