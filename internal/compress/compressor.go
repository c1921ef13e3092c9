// Package compress downsamples interval histories by age.
//
// Recent data keeps its original resolution; older contiguous intervals
// are merged into progressively wider buckets chosen from a per-family
// tier table. Merges never cross a UTC calendar month, so buckets that
// were finalized on an earlier run stay stable as now advances.
package compress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/relayhist/internal/history"
)

// Compress runs one left-to-right pass over intervals and returns the
// compressed sequence and the number of merges performed.
//
// Input must be ordered and disjoint. The input slice is not modified.
// With nested tier widths the result is a fixed point: compressing it
// again at the same now performs zero merges.
func Compress(intervals []history.Interval, now int64, table Table, rule history.Rule) ([]history.Interval, int) {
	if len(intervals) == 0 {
		return nil, 0
	}

	out := make([]history.Interval, 0, len(intervals))
	acc := intervals[0]
	merges := 0

	for _, next := range intervals[1:] {
		if canMerge(acc, next, now, table) {
			acc = history.Interval{
				Start:   acc.Start,
				End:     next.End,
				Payload: rule.Combine(acc.Payload, acc.Duration(), next.Payload, next.Duration()),
			}
			merges++
			continue
		}
		out = append(out, acc)
		acc = next
	}
	out = append(out, acc)

	return out, merges
}

func canMerge(acc, next history.Interval, now int64, table Table) bool {
	if acc.End != next.Start {
		return false
	}

	w := table.WidthFor(now - next.End)
	if w <= 0 {
		return false
	}
	if floorDiv(acc.End-1, w) != floorDiv(next.End-1, w) {
		return false
	}

	return sameMonth(acc.Start, next.Start)
}

func sameMonth(a, b int64) bool {
	ta, tb := time.UnixMilli(a).UTC(), time.UnixMilli(b).UTC()
	return ta.Year() == tb.Year() && ta.Month() == tb.Month()
}

// floorDiv rounds toward negative infinity so pre-1970 boundaries bucket
// the same way as later ones.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Compressor applies per-family tier tables to histories and keeps
// running statistics.
type Compressor struct {
	mu     sync.RWMutex
	tables map[history.Family]Table

	stats stats
}

type stats struct {
	Runs         atomic.Int64
	Merges       atomic.Int64
	IntervalsIn  atomic.Int64
	IntervalsOut atomic.Int64
}

// New creates a compressor. Families missing from tables use the
// built-in defaults. Every table is validated.
func New(tables map[history.Family]Table) (*Compressor, error) {
	merged := DefaultTables()
	for f, t := range tables {
		if !f.Valid() {
			return nil, fmt.Errorf("tier table for unknown family %d", int(f))
		}
		merged[f] = t
	}

	for f, t := range merged {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s tiers: %w", f, err)
		}
	}

	return &Compressor{tables: merged}, nil
}

// Table returns the tier table used for a family.
func (c *Compressor) Table(f history.Family) Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[f]
}

// Compress compresses h in place using the family's table and rule and
// returns the number of merges.
func (c *Compressor) Compress(f history.Family, h *history.History, now int64) int {
	in := h.Intervals()
	out, merges := Compress(in, now, c.Table(f), f.Rule())
	if merges > 0 {
		h.Replace(out)
	}

	c.stats.Runs.Add(1)
	c.stats.Merges.Add(int64(merges))
	c.stats.IntervalsIn.Add(int64(len(in)))
	c.stats.IntervalsOut.Add(int64(len(out)))

	return merges
}

// Stats returns current statistics.
func (c *Compressor) Stats() Stats {
	return Stats{
		Runs:         c.stats.Runs.Load(),
		Merges:       c.stats.Merges.Load(),
		IntervalsIn:  c.stats.IntervalsIn.Load(),
		IntervalsOut: c.stats.IntervalsOut.Load(),
	}
}

// Stats holds compressor statistics.
type Stats struct {
	Runs         int64
	Merges       int64
	IntervalsIn  int64
	IntervalsOut int64
}
