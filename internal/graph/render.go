// Package graph resamples interval histories onto fixed, epoch-anchored
// grids and encodes them as compact integer series.
package graph

import (
	"fmt"
	"math"

	"github.com/xtxerr/relayhist/internal/history"
)

// Mode selects what a bucket's value measures.
type Mode int

const (
	// ModeCoverage plots the fraction of the bucket backed by data.
	ModeCoverage Mode = iota
	// ModeMean plots the duration-weighted mean of Options.Value.
	ModeMean
)

// Scale selects how bucket values map onto integers.
type Scale int

const (
	// ScaleFraction encodes values in [0,1]; factor is 1/ceiling.
	ScaleFraction Scale = iota
	// ScaleMax encodes values relative to the series maximum; factor is
	// max/ceiling.
	ScaleMax
)

// Defaults for Options.
const (
	DefaultCeiling            = 999
	DefaultMinCoveragePercent = 20
)

// Options control one render call.
type Options struct {
	Ceiling            int
	MinCoveragePercent int64
	RequireAdjacent    bool
	Mode               Mode
	Scale              Scale

	// Value extracts the sample value of an interval for ModeMean.
	Value func(history.Interval) float64

	// Baseline, when set, normalizes coverage: the denominator and the
	// reliability test both use the baseline's coverage of the bucket,
	// counted from the entity's first interval on.
	Baseline *history.History
}

// DefaultOptions returns coverage options with the standard ceiling,
// reliability threshold and adjacency rule.
func DefaultOptions() Options {
	return Options{
		Ceiling:            DefaultCeiling,
		MinCoveragePercent: DefaultMinCoveragePercent,
		RequireAdjacent:    true,
		Mode:               ModeCoverage,
		Scale:              ScaleFraction,
	}
}

// Graph is one rendered series. First and Last are bucket midpoints in
// Unix milliseconds; Interval is the bucket width in seconds.
type Graph struct {
	Series   string  `json:"series,omitempty"`
	Name     string  `json:"name"`
	First    int64   `json:"first"`
	Last     int64   `json:"last"`
	Interval int64   `json:"interval"`
	Factor   float64 `json:"factor"`
	Count    int     `json:"count"`
	Values   []int   `json:"values"`
}

// Render resamples h onto spec's grid at time now. It reports false when
// the graph is omitted because no reliable bucket survives trimming, or
// when the adjacency rule is on and no two neighbouring buckets are
// reliable.
//
// Render panics if h (or the baseline) is not ordered and disjoint.
func Render(h *history.History, now int64, spec Spec, opts Options) (Graph, bool) {
	mustBeDisjoint(h)
	if opts.Baseline != nil {
		mustBeDisjoint(opts.Baseline)
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}

	w := spec.Width.Milliseconds()
	if w < 1000 || h.Len() == 0 {
		return Graph{}, false
	}

	// The first bucket is the one containing now-domain and counts its
	// whole span.
	k0, k1 := floorDiv(now-spec.Domain.Milliseconds(), w), floorDiv(now, w)
	lo, hi := k0*w, now
	n := int(k1 - k0 + 1)

	g := newGrid(k0, w, n, lo, hi)
	g.accumulate(h, opts.Value)

	var base []int64
	if opts.Baseline != nil {
		first, _ := h.First()
		bg := newGrid(k0, w, n, max(lo, first.Start), hi)
		bg.accumulate(opts.Baseline, nil)
		base = bg.covered
	}

	reliable := make([]bool, n)
	firstIdx, lastIdx := -1, -1
	for i := range reliable {
		rc := g.covered[i]
		if base != nil {
			rc = base[i]
		}
		if rc*100 >= opts.MinCoveragePercent*w {
			reliable[i] = true
			if firstIdx < 0 {
				firstIdx = i
			}
			lastIdx = i
		}
	}
	if firstIdx < 0 {
		return Graph{}, false
	}
	if opts.RequireAdjacent && !hasAdjacent(reliable[firstIdx:lastIdx+1]) {
		return Graph{}, false
	}

	raw := make([]float64, 0, lastIdx-firstIdx+1)
	for i := firstIdx; i <= lastIdx; i++ {
		raw = append(raw, g.value(i, base, opts.Mode))
	}
	values, factor := encode(raw, opts.Scale, opts.Ceiling)

	return Graph{
		Name:     spec.Name,
		First:    g.midpoint(firstIdx),
		Last:     g.midpoint(lastIdx),
		Interval: w / 1000,
		Factor:   factor,
		Count:    len(values),
		Values:   values,
	}, true
}

// RenderCatalog renders each spec in order. A graph after the first is
// left out when all of its data lies inside the previous spec's window,
// since the shorter graph already shows it at a finer resolution.
func RenderCatalog(h *history.History, now int64, catalog []Spec, opts Options) []Graph {
	var out []Graph
	for i, spec := range catalog {
		g, ok := Render(h, now, spec, opts)
		if !ok {
			continue
		}
		if i > 0 && g.First >= now-catalog[i-1].Domain.Milliseconds() {
			continue
		}
		out = append(out, g)
	}
	return out
}

func mustBeDisjoint(h *history.History) {
	if err := h.Validate(); err != nil {
		panic(fmt.Sprintf("graph: inconsistent history: %v", err))
	}
}

func hasAdjacent(reliable []bool) bool {
	for i := 1; i < len(reliable); i++ {
		if reliable[i-1] && reliable[i] {
			return true
		}
	}
	return false
}

// grid holds per-bucket sums for buckets k0..k0+n-1 of width w, counting
// only data inside [lo, hi).
type grid struct {
	k0, w  int64
	lo, hi int64

	covered  []int64
	weighted []float64
}

func newGrid(k0, w int64, n int, lo, hi int64) *grid {
	return &grid{
		k0:       k0,
		w:        w,
		lo:       lo,
		hi:       hi,
		covered:  make([]int64, n),
		weighted: make([]float64, n),
	}
}

func (g *grid) accumulate(h *history.History, value func(history.Interval) float64) {
	n := int64(len(g.covered))
	for i := 0; i < h.Len(); i++ {
		iv := h.At(i)
		start, end := max(iv.Start, g.lo), min(iv.End, g.hi)
		if start >= end {
			continue
		}

		var v float64
		if value != nil {
			v = value(iv)
		}

		for k := floorDiv(start, g.w); k*g.w < end; k++ {
			idx := k - g.k0
			if idx < 0 || idx >= n {
				continue
			}
			bs, be := k*g.w, (k+1)*g.w
			overlap := min(end, be) - max(start, bs)
			if overlap <= 0 {
				continue
			}
			g.covered[idx] += overlap
			g.weighted[idx] += float64(overlap) * v
		}
	}
}

func (g *grid) value(i int, base []int64, mode Mode) float64 {
	if mode == ModeMean {
		if g.covered[i] == 0 {
			return 0
		}
		return g.weighted[i] / float64(g.covered[i])
	}

	denom := g.w
	if base != nil && base[i] > 0 {
		denom = base[i]
	}
	return clamp(float64(g.covered[i]) / float64(denom))
}

func (g *grid) midpoint(i int) int64 {
	return (g.k0+int64(i))*g.w + g.w/2
}

func encode(raw []float64, scale Scale, ceiling int) ([]int, float64) {
	values := make([]int, len(raw))
	c := float64(ceiling)

	if scale == ScaleMax {
		var peak float64
		for _, v := range raw {
			if v > peak {
				peak = v
			}
		}
		if peak <= 0 {
			return values, 0
		}
		for i, v := range raw {
			values[i] = int(math.Round(clamp(v/peak) * c))
		}
		return values, peak / c
	}

	for i, v := range raw {
		values[i] = int(math.Round(clamp(v) * c))
	}
	return values, 1 / c
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
