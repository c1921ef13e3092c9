package journal

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/status"
)

// Batch is one journaled ingest: the observations of a single Ingest
// call and the time it ran.
type Batch struct {
	IngestedAt   int64
	Observations []status.Observation
}

// Batch encoding, protobuf wire format:
//
//	batch:
//	  1 ingested_at  sint64
//	  2 observation  bytes, repeated
//	observation:
//	  1 family  varint
//	  2 entity  bytes
//	  3 start   sint64
//	  4 end     sint64
//	  5 value   fixed64 (counter value or counts total)
//	  6 vector  fixed64, repeated
//	  7 count   bytes, repeated
//	count:
//	  1 key    bytes
//	  2 value  fixed64

const (
	batchIngestedAt  protowire.Number = 1
	batchObservation protowire.Number = 2

	obsFamily protowire.Number = 1
	obsEntity protowire.Number = 2
	obsStart  protowire.Number = 3
	obsEnd    protowire.Number = 4
	obsValue  protowire.Number = 5
	obsVector protowire.Number = 6
	obsCount  protowire.Number = 7

	countKey   protowire.Number = 1
	countValue protowire.Number = 2
)

// encodeBatch encodes a batch into its wire form.
func encodeBatch(b Batch) []byte {
	// ~96 bytes per observation on average
	buf := make([]byte, 0, 16+len(b.Observations)*96)

	buf = protowire.AppendTag(buf, batchIngestedAt, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(b.IngestedAt))

	for _, o := range b.Observations {
		buf = protowire.AppendTag(buf, batchObservation, protowire.BytesType)
		buf = protowire.AppendBytes(buf, encodeObservation(o))
	}
	return buf
}

func encodeObservation(o status.Observation) []byte {
	buf := make([]byte, 0, 64)
	buf = protowire.AppendTag(buf, obsFamily, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(o.Family))
	buf = protowire.AppendTag(buf, obsEntity, protowire.BytesType)
	buf = protowire.AppendString(buf, o.Entity)
	buf = protowire.AppendTag(buf, obsStart, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(o.Interval.Start))
	buf = protowire.AppendTag(buf, obsEnd, protowire.VarintType)
	buf = protowire.AppendVarint(buf, protowire.EncodeZigZag(o.Interval.End))

	switch p := o.Interval.Payload.(type) {
	case history.Counter:
		buf = appendDouble(buf, obsValue, p.Value)
	case history.Vector:
		for _, v := range p {
			buf = appendDouble(buf, obsVector, v)
		}
	case history.Counts:
		buf = appendDouble(buf, obsValue, p.Total)
		for k, v := range p.ByKey {
			var pair []byte
			pair = protowire.AppendTag(pair, countKey, protowire.BytesType)
			pair = protowire.AppendString(pair, k)
			pair = appendDouble(pair, countValue, v)
			buf = protowire.AppendTag(buf, obsCount, protowire.BytesType)
			buf = protowire.AppendBytes(buf, pair)
		}
	}
	return buf
}

func appendDouble(buf []byte, num protowire.Number, v float64) []byte {
	buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(buf, math.Float64bits(v))
}

// decodeBatch decodes a batch. Unknown fields are skipped.
func decodeBatch(data []byte) (Batch, error) {
	var b Batch
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return b, corrupt("batch tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == batchIngestedAt && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return b, corrupt("ingested_at", protowire.ParseError(n))
			}
			b.IngestedAt = protowire.DecodeZigZag(v)
			data = data[n:]

		case num == batchObservation && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return b, corrupt("observation", protowire.ParseError(n))
			}
			o, err := decodeObservation(raw)
			if err != nil {
				return b, fmt.Errorf("observation %d: %w", len(b.Observations), err)
			}
			b.Observations = append(b.Observations, o)
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return b, corrupt("unknown field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return b, nil
}

func decodeObservation(data []byte) (status.Observation, error) {
	var (
		o      status.Observation
		value  float64
		vector history.Vector
		counts map[string]float64
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return o, corrupt("observation tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.VarintType && (num == obsFamily || num == obsStart || num == obsEnd):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return o, corrupt("varint", protowire.ParseError(n))
			}
			switch num {
			case obsFamily:
				o.Family = history.Family(v)
			case obsStart:
				o.Interval.Start = protowire.DecodeZigZag(v)
			case obsEnd:
				o.Interval.End = protowire.DecodeZigZag(v)
			}
			data = data[n:]

		case num == obsEntity && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return o, corrupt("entity", protowire.ParseError(n))
			}
			o.Entity = s
			data = data[n:]

		case typ == protowire.Fixed64Type && (num == obsValue || num == obsVector):
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return o, corrupt("double", protowire.ParseError(n))
			}
			if num == obsValue {
				value = math.Float64frombits(v)
			} else {
				vector = append(vector, math.Float64frombits(v))
			}
			data = data[n:]

		case num == obsCount && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return o, corrupt("count", protowire.ParseError(n))
			}
			k, v, err := decodeCount(raw)
			if err != nil {
				return o, err
			}
			if counts == nil {
				counts = make(map[string]float64)
			}
			counts[k] = v
			data = data[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return o, corrupt("unknown field", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !o.Family.Valid() {
		return o, fmt.Errorf("family %d: %w: %w", o.Family, errors.ErrJournalCorrupt, errors.ErrUnknownFamily)
	}

	switch o.Family.Kind() {
	case history.KindVector:
		o.Interval.Payload = vector
	case history.KindCounts:
		o.Interval.Payload = history.Counts{Total: value, ByKey: counts}
	default:
		o.Interval.Payload = history.Counter{Value: value}
	}
	return o, nil
}

func decodeCount(data []byte) (string, float64, error) {
	var (
		key   string
		value float64
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return "", 0, corrupt("count tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == countKey && typ == protowire.BytesType:
			key, n = protowire.ConsumeString(data)
		case num == countValue && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(data)
			value = math.Float64frombits(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return "", 0, corrupt("count field", protowire.ParseError(n))
		}
		data = data[n:]
	}
	return key, value, nil
}

func corrupt(what string, err error) error {
	return fmt.Errorf("%s: %w: %v", what, errors.ErrJournalCorrupt, err)
}
