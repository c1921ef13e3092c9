package status

import (
	"fmt"
	"math"
	"strings"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/validation"
)

// RawObservation is one upstream observation before payload parsing.
// Fields hold the family-specific payload as strings:
//
//	uptime, read, write  one number
//	weights              one number per weight component
//	clients              total, then key=value pairs
type RawObservation struct {
	Family string
	Entity string
	Start  int64
	End    int64
	Fields []string
}

// Observation is a typed observation for one entity.
type Observation struct {
	Family   history.Family
	Entity   string
	Interval history.Interval
}

// Key returns the record key the observation belongs to.
func (o Observation) Key() string {
	return Key(o.Family, o.Entity)
}

// ParseObservation validates a raw observation and parses its payload.
// Every failure wraps ErrMalformedPayload, ErrInvalidInterval or
// ErrUnknownFamily.
func ParseObservation(raw RawObservation) (Observation, error) {
	f, err := history.ParseFamily(raw.Family)
	if err != nil {
		return Observation{}, fmt.Errorf("%q: %w", raw.Family, errors.ErrUnknownFamily)
	}
	if err := validation.ValidateEntity(raw.Entity); err != nil {
		return Observation{}, errors.NewMalformed("entity", raw.Entity, err.Error())
	}
	if raw.Start >= raw.End {
		return Observation{}, fmt.Errorf("[%d,%d): %w", raw.Start, raw.End, errors.ErrInvalidInterval)
	}

	payload, err := parseFields(f, raw.Fields)
	if err != nil {
		return Observation{}, err
	}

	return Observation{
		Family:   f,
		Entity:   raw.Entity,
		Interval: history.Interval{Start: raw.Start, End: raw.End, Payload: payload},
	}, nil
}

// Validate checks a typed observation the way ParseObservation checks a
// raw one: a known family, a valid entity, a non-empty interval and a
// payload of the family's kind with finite, non-negative values.
func (o Observation) Validate() error {
	if !o.Family.Valid() {
		return fmt.Errorf("%d: %w", int(o.Family), errors.ErrUnknownFamily)
	}
	if err := validation.ValidateEntity(o.Entity); err != nil {
		return errors.NewMalformed("entity", o.Entity, err.Error())
	}
	iv := o.Interval
	if iv.Start >= iv.End {
		return fmt.Errorf("[%d,%d): %w", iv.Start, iv.End, errors.ErrInvalidInterval)
	}
	if iv.Payload == nil {
		return errors.NewMalformed(o.Family.String(), nil, "missing payload")
	}
	if iv.Payload.Kind() != o.Family.Kind() {
		return errors.NewMalformed(o.Family.String(), iv.Payload.Kind().String(),
			fmt.Sprintf("expected %s payload", o.Family.Kind()))
	}

	switch p := iv.Payload.(type) {
	case history.Counter:
		return checkFinite(o.Family.String(), p.Value)
	case history.Vector:
		if len(p) != history.WeightComponents {
			return errors.NewMalformed("weights", len(p),
				fmt.Sprintf("expected %d components", history.WeightComponents))
		}
		for i, v := range p {
			if err := checkFinite(history.WeightNames[i], v); err != nil {
				return err
			}
		}
	case history.Counts:
		if err := checkFinite("total", p.Total); err != nil {
			return err
		}
		for k, v := range p.ByKey {
			if k == "" {
				return errors.NewMalformed("clients", p.ByKey, "empty key")
			}
			if err := checkFinite(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkFinite(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return errors.NewMalformed(field, v, "must be finite and non-negative")
	}
	return nil
}

func parseFields(f history.Family, fields []string) (history.Payload, error) {
	switch f.Kind() {
	case history.KindVector:
		if len(fields) != history.WeightComponents {
			return nil, errors.NewMalformed("weights", strings.Join(fields, " "),
				fmt.Sprintf("expected %d components", history.WeightComponents))
		}
		out := make(history.Vector, len(fields))
		for i, s := range fields {
			v, err := parseFinite(history.WeightNames[i], s)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case history.KindCounts:
		if len(fields) == 0 {
			return nil, errors.NewMalformed("clients", "", "missing total")
		}
		total, err := parseFinite("total", fields[0])
		if err != nil {
			return nil, err
		}
		out := history.Counts{Total: total}
		if len(fields) > 1 {
			out.ByKey, err = parsePairs(fields[1:])
			if err != nil {
				return nil, err
			}
			for k, v := range out.ByKey {
				if err := checkFinite(k, v); err != nil {
					return nil, err
				}
			}
		}
		return out, nil

	default:
		if len(fields) != 1 {
			return nil, errors.NewMalformed(f.String(), strings.Join(fields, " "), "expected one value")
		}
		v, err := parseFinite(f.String(), fields[0])
		if err != nil {
			return nil, err
		}
		return history.Counter{Value: v}, nil
	}
}

func parseFinite(field, s string) (float64, error) {
	v, err := parseFloat(field, s)
	if err != nil {
		return 0, err
	}
	if err := checkFinite(field, v); err != nil {
		return 0, err
	}
	return v, nil
}

// Group groups observations by record key, preserving first-seen order.
func Group(obs []Observation) ([]string, map[string][]Observation) {
	var order []string
	groups := make(map[string][]Observation)
	for _, o := range obs {
		k := o.Key()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}
	return order, groups
}
