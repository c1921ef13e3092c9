// Package store defines the record persistence boundary and the
// in-process backends.
//
// Backends keep interval boundaries and payloads bit-exact across a
// Store/Retrieve round trip: merge acceptance depends on exact
// millisecond boundaries. Durable backends live in subpackages (badger,
// duckdb, parquet).
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
)

// Store persists status records keyed by (family, entity).
//
// Retrieve returns an error matching errors.ErrNotFound when no record
// exists. Implementations are safe for concurrent use; callers serialize
// writes per entity.
type Store interface {
	Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error)
	Store(ctx context.Context, rec *status.Record) error
	Close() error
}

// Lister is implemented by stores that can enumerate the entities of a
// family.
type Lister interface {
	List(ctx context.Context, f history.Family) ([]string, error)
}

// =============================================================================
// Memory
// =============================================================================

// Memory keeps encoded status documents in a map. Records are encoded
// on Store and decoded on Retrieve, so callers never share history
// storage with the store.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

// Retrieve implements Store.
func (m *Memory) Retrieve(ctx context.Context, f history.Family, entity string) (*status.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	doc, ok := m.docs[status.Key(f, entity)]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, errors.ErrStoreClosed
	}
	if !ok {
		return nil, errors.NewNotFound(f.String(), entity)
	}
	return status.Unmarshal(doc, f, entity, nil)
}

// Store implements Store.
func (m *Memory) Store(ctx context.Context, rec *status.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := status.Marshal(rec)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ErrStoreClosed
	}
	m.docs[rec.Key()] = doc
	return nil
}

// List implements Lister.
func (m *Memory) List(ctx context.Context, f history.Family) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := f.String() + "/"
	var out []string
	for k := range m.docs {
		if entity, ok := strings.CutPrefix(k, prefix); ok {
			out = append(out, entity)
		}
	}
	return sortStrings(out), nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
