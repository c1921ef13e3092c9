package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
	"github.com/xtxerr/relayhist/internal/store"
)

// Fingerprint is a relay fingerprint used across tests.
const Fingerprint = "9695DFC35FFEB861329B9F1AB04C46397020CE31"

// Time parses a UTC "2006-01-02 15:04:05" timestamp into Unix ms.
// It panics on malformed input.
func Time(s string) int64 {
	t, err := time.Parse(time.DateTime, s)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

// Hours returns n consecutive one-hour observations for one record,
// starting at start. payload is called with the hour index.
func Hours(f history.Family, entity string, start int64, n int, payload func(i int) history.Payload) []status.Observation {
	const hour = int64(time.Hour / time.Millisecond)
	out := make([]status.Observation, n)
	for i := range out {
		s := start + int64(i)*hour
		out[i] = status.Observation{
			Family:   f,
			Entity:   entity,
			Interval: history.Interval{Start: s, End: s + hour, Payload: payload(i)},
		}
	}
	return out
}

// Uptime returns n hourly uptime observations for entity starting at the
// given timestamp.
func Uptime(entity, start string, n int) []status.Observation {
	return Hours(history.FamilyUptime, entity, Time(start), n, func(int) history.Payload {
		return history.Counter{Value: 1}
	})
}

// FaultyStore wraps a store and fails calls for chosen records.
type FaultyStore struct {
	inner store.Store

	mu           sync.Mutex
	failRetrieve map[string]bool
	failStore    map[string]bool

	Retrieves atomic.Int64
	Stores    atomic.Int64
}

// NewFaultyStore wraps inner.
func NewFaultyStore(inner store.Store) *FaultyStore {
	return &FaultyStore{
		inner:        inner,
		failRetrieve: make(map[string]bool),
		failStore:    make(map[string]bool),
	}
}

// FailRetrieve makes Retrieve fail for the record.
func (s *FaultyStore) FailRetrieve(f history.Family, entity string) {
	s.mu.Lock()
	s.failRetrieve[status.Key(f, entity)] = true
	s.mu.Unlock()
}

// FailStore makes Store fail for the record.
func (s *FaultyStore) FailStore(f history.Family, entity string) {
	s.mu.Lock()
	s.failStore[status.Key(f, entity)] = true
	s.mu.Unlock()
}

// Heal clears all injected failures.
func (s *FaultyStore) Heal() {
	s.mu.Lock()
	clear(s.failRetrieve)
	clear(s.failStore)
	s.mu.Unlock()
}

func (s *FaultyStore) fails(m map[string]bool, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return m[key]
}

// Retrieve implements store.Store.
func (s *FaultyStore) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	s.Retrieves.Add(1)
	if s.fails(s.failRetrieve, status.Key(f, entity)) {
		return nil, errors.NewStoreFailure("retrieve", f.String(), entity, fmt.Errorf("injected failure"))
	}
	return s.inner.Retrieve(ctx, f, entity)
}

// Store implements store.Store.
func (s *FaultyStore) Store(ctx context.Context, rec *status.Record) error {
	s.Stores.Add(1)
	if s.fails(s.failStore, rec.Key()) {
		return errors.NewStoreFailure("store", rec.Family.String(), rec.Entity, fmt.Errorf("injected failure"))
	}
	return s.inner.Store(ctx, rec)
}

// List implements store.Lister when the wrapped store does.
func (s *FaultyStore) List(ctx context.Context, f history.Family) ([]string, error) {
	l, ok := s.inner.(store.Lister)
	if !ok {
		return nil, fmt.Errorf("store %T cannot list records", s.inner)
	}
	return l.List(ctx, f)
}

// Close implements store.Store.
func (s *FaultyStore) Close() error {
	return s.inner.Close()
}
