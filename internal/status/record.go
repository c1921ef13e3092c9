// Package status holds per-entity status records, their line-oriented
// document encoding, and parsing of upstream observations.
package status

import (
	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/history"
)

// Record owns the interval history of one (family, entity) pair.
//
// The dirty flag is transient: it is set when a merge accepts at least
// one interval, never persisted, and cleared by the caller after a
// successful store. Record is not safe for concurrent use.
type Record struct {
	Family history.Family
	Entity string

	history *history.History
	dirty   bool
}

// New creates an empty record.
func New(f history.Family, entity string) *Record {
	return &Record{Family: f, Entity: entity, history: history.New()}
}

// FromHistory wraps an existing history, as loaded from a store.
func FromHistory(f history.Family, entity string, h *history.History) *Record {
	if h == nil {
		h = history.New()
	}
	return &Record{Family: f, Entity: entity, history: h}
}

// Key returns "family/entity".
func Key(f history.Family, entity string) string {
	return f.String() + "/" + entity
}

// Key returns the record's store key.
func (r *Record) Key() string {
	return Key(r.Family, r.Entity)
}

// History returns the record's history. Callers must hold the entity
// lock while reading it.
func (r *Record) History() *history.History {
	return r.history
}

// Rule returns the combine rule fixed by the record's family.
func (r *Record) Rule() history.Rule {
	return r.Family.Rule()
}

// Merge merges intervals into the history and marks the record dirty
// when anything was accepted.
func (r *Record) Merge(intervals []history.Interval) int {
	n := r.history.Merge(intervals)
	if n > 0 {
		r.dirty = true
	}
	return n
}

// Compress downsamples the history with c's table for the family.
func (r *Record) Compress(c *compress.Compressor, now int64) int {
	return c.Compress(r.Family, r.history, now)
}

// Dirty reports whether the record changed since it was last stored.
func (r *Record) Dirty() bool {
	return r.dirty
}

// ClearDirty marks the record as persisted.
func (r *Record) ClearDirty() {
	r.dirty = false
}

// Clone returns a deep copy with the same dirty state.
func (r *Record) Clone() *Record {
	return &Record{
		Family:  r.Family,
		Entity:  r.Entity,
		history: r.history.Clone(),
		dirty:   r.dirty,
	}
}
