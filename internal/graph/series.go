package graph

import (
	"github.com/xtxerr/relayhist/internal/history"
)

// Series is one plotted quantity of a family. Most families plot a
// single series; weights plot one per vector component.
type Series struct {
	Name    string
	Options Options
}

// FamilySeries returns the series rendered for a family, built on base.
// base carries the shared knobs (ceiling, threshold, adjacency); mode,
// scale and value extraction are fixed per family. The uptime series is
// normalized only when the caller sets Options.Baseline.
func FamilySeries(f history.Family, base Options) []Series {
	switch f {
	case history.FamilyReadHistory, history.FamilyWriteHistory:
		opts := base
		opts.Mode, opts.Scale, opts.Value = ModeMean, ScaleMax, bytesPerSecond
		return []Series{{Name: f.String(), Options: opts}}

	case history.FamilyWeights:
		out := make([]Series, 0, history.WeightComponents)
		for i, name := range history.WeightNames {
			opts := base
			opts.Mode, opts.Scale, opts.Value = ModeMean, ScaleMax, component(i)
			out = append(out, Series{Name: name, Options: opts})
		}
		return out

	case history.FamilyClients:
		opts := base
		opts.Mode, opts.Scale, opts.Value = ModeMean, ScaleMax, clientsPerDay
		return []Series{{Name: "average_clients", Options: opts}}

	default:
		opts := base
		opts.Mode, opts.Scale, opts.Value = ModeCoverage, ScaleFraction, nil
		return []Series{{Name: f.String(), Options: opts}}
	}
}

// RenderFamily renders every series of a family over its catalog and
// tags each graph with its series name.
func RenderFamily(f history.Family, h *history.History, now int64, catalog []Spec, base Options) []Graph {
	var out []Graph
	for _, s := range FamilySeries(f, base) {
		for _, g := range RenderCatalog(h, now, catalog, s.Options) {
			g.Series = s.Name
			out = append(out, g)
		}
	}
	return out
}

func bytesPerSecond(iv history.Interval) float64 {
	c, ok := iv.Payload.(history.Counter)
	if !ok || iv.Duration() <= 0 {
		return 0
	}
	return c.Value * 1000 / float64(iv.Duration())
}

func component(i int) func(history.Interval) float64 {
	return func(iv history.Interval) float64 {
		v, ok := iv.Payload.(history.Vector)
		if !ok || i >= len(v) {
			return 0
		}
		return v[i]
	}
}

// Directory responses per day over ten approximate the number of
// connected clients.
func clientsPerDay(iv history.Interval) float64 {
	c, ok := iv.Payload.(history.Counts)
	if !ok || iv.Duration() <= 0 {
		return 0
	}
	days := float64(iv.Duration()) / float64(day.Milliseconds())
	return c.Total / days / 10
}
