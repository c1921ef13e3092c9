package history

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// Kind identifies one of the closed set of payload variants.
type Kind int

const (
	// KindCounter is an additive scalar (status counts, bytes).
	KindCounter Kind = iota
	// KindVector is a duration-weighted vector (path selection weights).
	KindVector
	// KindCounts is an additive keyed map (client responses).
	KindCounts
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindVector:
		return "vector"
	case KindCounts:
		return "counts"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Payload is the typed value carried by an interval. The set of
// implementations is closed: Counter, Vector and Counts.
type Payload interface {
	Kind() Kind
	Clone() Payload
	Equal(other Payload) bool
	sealed()
}

// Counter is an additive scalar.
type Counter struct {
	Value float64
}

func (Counter) Kind() Kind { return KindCounter }
func (c Counter) Clone() Payload { return c }
func (Counter) sealed() {}
func (c Counter) Equal(o Payload) bool {
	oc, ok := o.(Counter)
	return ok && sameFloat(c.Value, oc.Value)
}

// Vector is a fixed-length vector averaged by duration when combined.
type Vector []float64

func (Vector) Kind() Kind { return KindVector }
func (v Vector) Clone() Payload { return slices.Clone(v) }
func (Vector) sealed() {}
func (v Vector) Equal(o Payload) bool {
	ov, ok := o.(Vector)
	if !ok || len(v) != len(ov) {
		return false
	}
	for i := range v {
		if !sameFloat(v[i], ov[i]) {
			return false
		}
	}
	return true
}

// Counts is an additive total plus per-key breakdown.
type Counts struct {
	Total float64
	ByKey map[string]float64
}

func (Counts) Kind() Kind { return KindCounts }
func (Counts) sealed() {}
func (c Counts) Clone() Payload {
	return Counts{Total: c.Total, ByKey: maps.Clone(c.ByKey)}
}
func (c Counts) Equal(o Payload) bool {
	oc, ok := o.(Counts)
	if !ok || !sameFloat(c.Total, oc.Total) || len(c.ByKey) != len(oc.ByKey) {
		return false
	}
	for k, v := range c.ByKey {
		ov, ok := oc.ByKey[k]
		if !ok || !sameFloat(v, ov) {
			return false
		}
	}
	return true
}

// sameFloat compares bit patterns so NaN round trips compare equal.
func sameFloat(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// Rule binds a payload kind to its combine function and additive identity.
// A record picks its rule once, from its family, and uses it for every
// interval it ever combines.
type Rule struct {
	Kind     Kind
	Identity func() Payload
	Combine  func(a Payload, durA int64, b Payload, durB int64) Payload
}

// RuleFor returns the rule for a payload kind.
func RuleFor(k Kind) Rule {
	switch k {
	case KindVector:
		return Rule{Kind: k, Identity: func() Payload { return Vector(nil) }, Combine: combineVector}
	case KindCounts:
		return Rule{Kind: k, Identity: func() Payload { return Counts{} }, Combine: combineCounts}
	default:
		return Rule{Kind: KindCounter, Identity: func() Payload { return Counter{} }, Combine: combineCounter}
	}
}

func combineCounter(a Payload, _ int64, b Payload, _ int64) Payload {
	return Counter{Value: asCounter(a).Value + asCounter(b).Value}
}

func combineVector(a Payload, durA int64, b Payload, durB int64) Payload {
	va, vb := asVector(a), asVector(b)
	switch {
	case len(va) == 0:
		return slices.Clone(vb)
	case len(vb) == 0:
		return slices.Clone(va)
	}

	total := float64(durA + durB)
	if total <= 0 {
		return slices.Clone(va)
	}

	out := make(Vector, max(len(va), len(vb)))
	for i := range out {
		var x, y float64
		if i < len(va) {
			x = va[i]
		}
		if i < len(vb) {
			y = vb[i]
		}
		out[i] = (x*float64(durA) + y*float64(durB)) / total
	}
	return out
}

func combineCounts(a Payload, _ int64, b Payload, _ int64) Payload {
	ca, cb := asCounts(a), asCounts(b)
	out := Counts{Total: ca.Total + cb.Total}
	if len(ca.ByKey)+len(cb.ByKey) > 0 {
		out.ByKey = make(map[string]float64, len(ca.ByKey)+len(cb.ByKey))
		for k, v := range ca.ByKey {
			out.ByKey[k] += v
		}
		for k, v := range cb.ByKey {
			out.ByKey[k] += v
		}
	}
	return out
}

func asCounter(p Payload) Counter {
	if c, ok := p.(Counter); ok {
		return c
	}
	return Counter{}
}

func asVector(p Payload) Vector {
	if v, ok := p.(Vector); ok {
		return v
	}
	return nil
}

func asCounts(p Payload) Counts {
	if c, ok := p.(Counts); ok {
		return c
	}
	return Counts{}
}
