// Package history implements the per-entity interval history: an ordered
// set of pairwise disjoint, half-open time intervals carrying typed
// payloads, and its idempotent merge.
package history

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// Interval is a half-open time range [Start, End) in Unix milliseconds
// with a typed payload. Intervals are values; History never hands out
// references into its own storage.
type Interval struct {
	Start   int64
	End     int64
	Payload Payload
}

// Duration returns End - Start in milliseconds.
func (iv Interval) Duration() int64 {
	return iv.End - iv.Start
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool {
	return iv.Start < iv.End
}

// StartTime returns the start as a time.Time in UTC.
func (iv Interval) StartTime() time.Time {
	return time.UnixMilli(iv.Start).UTC()
}

// EndTime returns the end as a time.Time in UTC.
func (iv Interval) EndTime() time.Time {
	return time.UnixMilli(iv.End).UTC()
}

// Equal compares boundaries and payload.
func (iv Interval) Equal(o Interval) bool {
	if iv.Start != o.Start || iv.End != o.End {
		return false
	}
	if iv.Payload == nil || o.Payload == nil {
		return iv.Payload == nil && o.Payload == nil
	}
	return iv.Payload.Equal(o.Payload)
}

// Compare orders intervals by start, then end.
func Compare(a, b Interval) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	return cmp.Compare(a.End, b.End)
}

// History is an ordered set of disjoint intervals for one entity.
//
// Invariant: starts strictly increase and End[i] <= Start[i+1].
// History is not safe for concurrent mutation; the updater serializes
// writers per entity.
type History struct {
	intervals []Interval
}

// New builds a history by merging the given intervals.
// Overlapping intervals are dropped exactly as Merge would drop them.
func New(intervals ...Interval) *History {
	h := &History{}
	h.Merge(intervals)
	return h
}

// FromSorted adopts intervals that are already ordered and disjoint.
// It returns an error instead of repairing input that breaks the invariant.
func FromSorted(intervals []Interval) (*History, error) {
	h := &History{intervals: slices.Clone(intervals)}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// Len returns the number of intervals.
func (h *History) Len() int {
	return len(h.intervals)
}

// At returns the i-th interval.
func (h *History) At(i int) Interval {
	return h.intervals[i]
}

// Intervals returns a copy of the intervals in order.
func (h *History) Intervals() []Interval {
	return slices.Clone(h.intervals)
}

// First returns the earliest interval.
func (h *History) First() (Interval, bool) {
	if len(h.intervals) == 0 {
		return Interval{}, false
	}
	return h.intervals[0], true
}

// Last returns the latest interval.
func (h *History) Last() (Interval, bool) {
	if len(h.intervals) == 0 {
		return Interval{}, false
	}
	return h.intervals[len(h.intervals)-1], true
}

// Covered returns the total covered duration in milliseconds.
func (h *History) Covered() int64 {
	var total int64
	for _, iv := range h.intervals {
		total += iv.Duration()
	}
	return total
}

// Merge adds every candidate that fits between its neighbours and returns
// how many were accepted.
//
// A candidate is accepted iff the greatest interval starting at or before
// it ends no later than the candidate's start, and the smallest interval
// starting at or after it starts no earlier than the candidate's end.
// Everything else, including exact duplicates, is silently ignored; this
// is what makes replaying an ingested batch a no-op.
func (h *History) Merge(candidates []Interval) int {
	if len(candidates) == 0 {
		return 0
	}

	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, Compare)

	accepted := 0
	for _, c := range sorted {
		if !c.Valid() {
			continue
		}

		// i is the successor: first interval with Start >= c.Start.
		i, _ := slices.BinarySearchFunc(h.intervals, c.Start, func(iv Interval, start int64) int {
			return cmp.Compare(iv.Start, start)
		})

		if i > 0 && h.intervals[i-1].End > c.Start {
			continue
		}
		if i < len(h.intervals) && h.intervals[i].Start < c.End {
			continue
		}

		h.intervals = slices.Insert(h.intervals, i, c)
		accepted++
	}

	return accepted
}

// Replace swaps in a new interval list, typically compressor output.
// The caller guarantees the invariant; Validate checks it.
func (h *History) Replace(intervals []Interval) {
	h.intervals = intervals
}

// Validate checks ordering and disjointness.
func (h *History) Validate() error {
	for i, iv := range h.intervals {
		if !iv.Valid() {
			return fmt.Errorf("interval %d [%d,%d) is empty", i, iv.Start, iv.End)
		}
		if i == 0 {
			continue
		}
		prev := h.intervals[i-1]
		if prev.Start >= iv.Start {
			return fmt.Errorf("interval %d starts at %d, not after %d", i, iv.Start, prev.Start)
		}
		if prev.End > iv.Start {
			return fmt.Errorf("interval %d [%d,%d) overlaps [%d,%d)", i, iv.Start, iv.End, prev.Start, prev.End)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (h *History) Clone() *History {
	out := make([]Interval, len(h.intervals))
	for i, iv := range h.intervals {
		out[i] = iv
		if iv.Payload != nil {
			out[i].Payload = iv.Payload.Clone()
		}
	}
	return &History{intervals: out}
}

// Equal compares two histories interval by interval.
func (h *History) Equal(o *History) bool {
	return slices.EqualFunc(h.intervals, o.intervals, Interval.Equal)
}
