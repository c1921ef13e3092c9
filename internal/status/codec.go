package status

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/logging"
)

// A status document holds one interval per line:
//
//	<start-ms> <end-ms> <payload>
//
// Counter payloads are a single number. Vector payloads are
// comma-separated numbers, or "-" when empty. Counts payloads are the
// total, optionally followed by comma-separated key=value pairs with
// query-escaped keys. Numbers use the shortest representation that
// parses back to the same float64. Blank lines and lines starting with
// '#' are ignored.

// Encode writes the record's history as a status document.
func Encode(w io.Writer, r *Record) error {
	bw := bufio.NewWriter(w)
	h := r.History()
	for i := 0; i < h.Len(); i++ {
		if _, err := bw.WriteString(EncodeInterval(h.At(i))); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal is Encode into a byte slice.
func Marshal(r *Record) []byte {
	var buf bytes.Buffer
	_ = Encode(&buf, r)
	return buf.Bytes()
}

// EncodeInterval formats one document line without the trailing newline.
func EncodeInterval(iv history.Interval) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(iv.Start, 10))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(iv.End, 10))
	sb.WriteByte(' ')
	sb.WriteString(EncodePayload(iv.Payload))
	return sb.String()
}

// EncodePayload formats a payload as it appears in a document line.
func EncodePayload(p history.Payload) string {
	switch v := p.(type) {
	case history.Counter:
		return formatFloat(v.Value)
	case history.Vector:
		if len(v) == 0 {
			return "-"
		}
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = formatFloat(x)
		}
		return strings.Join(parts, ",")
	case history.Counts:
		if len(v.ByKey) == 0 {
			return formatFloat(v.Total)
		}
		keys := slices.Sorted(maps.Keys(v.ByKey))
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = url.QueryEscape(k) + "=" + formatFloat(v.ByKey[k])
		}
		return formatFloat(v.Total) + " " + strings.Join(parts, ",")
	default:
		return "0"
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Decode reads a status document into a new record. Malformed lines are
// logged and skipped; lines overlapping earlier ones are dropped by the
// history merge. Only read errors are returned.
func Decode(rd io.Reader, f history.Family, entity string, log *slog.Logger) (*Record, error) {
	if log == nil {
		log = logging.Component("status")
	}

	var intervals []history.Interval
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		iv, err := DecodeInterval(line, f.Kind())
		if err != nil {
			logging.ForRecord(log, f.String(), entity).Warn("skipping malformed status line",
				"line", lineNo, "error", err)
			continue
		}
		intervals = append(intervals, iv)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s document: %w", Key(f, entity), err)
	}

	return FromHistory(f, entity, history.New(intervals...)), nil
}

// Unmarshal is Decode from a byte slice.
func Unmarshal(data []byte, f history.Family, entity string, log *slog.Logger) (*Record, error) {
	return Decode(bytes.NewReader(data), f, entity, log)
}

// DecodeInterval parses one document line for the given payload kind.
func DecodeInterval(line string, kind history.Kind) (history.Interval, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return history.Interval{}, errors.NewMalformed("line", line, "expected start, end and payload")
	}

	start, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return history.Interval{}, errors.NewMalformed("start", fields[0], "not an integer")
	}
	end, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return history.Interval{}, errors.NewMalformed("end", fields[1], "not an integer")
	}
	if start >= end {
		return history.Interval{}, fmt.Errorf("[%d,%d): %w", start, end, errors.ErrInvalidInterval)
	}

	payload, err := decodePayload(fields[2:], kind)
	if err != nil {
		return history.Interval{}, err
	}

	return history.Interval{Start: start, End: end, Payload: payload}, nil
}

// DecodePayload parses a payload written by EncodePayload.
func DecodePayload(s string, kind history.Kind) (history.Payload, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.NewMalformed("payload", s, "empty")
	}
	return decodePayload(fields, kind)
}

func decodePayload(fields []string, kind history.Kind) (history.Payload, error) {
	switch kind {
	case history.KindCounter:
		if len(fields) != 1 {
			return nil, errors.NewMalformed("counter", strings.Join(fields, " "), "expected one value")
		}
		v, err := parseFloat("counter", fields[0])
		if err != nil {
			return nil, err
		}
		return history.Counter{Value: v}, nil

	case history.KindVector:
		if len(fields) != 1 {
			return nil, errors.NewMalformed("vector", strings.Join(fields, " "), "expected one comma-separated list")
		}
		if fields[0] == "-" {
			return history.Vector(nil), nil
		}
		parts := strings.Split(fields[0], ",")
		out := make(history.Vector, len(parts))
		for i, p := range parts {
			v, err := parseFloat("vector", p)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case history.KindCounts:
		if len(fields) > 2 {
			return nil, errors.NewMalformed("counts", strings.Join(fields, " "), "expected total and optional pairs")
		}
		total, err := parseFloat("total", fields[0])
		if err != nil {
			return nil, err
		}
		out := history.Counts{Total: total}
		if len(fields) == 2 {
			out.ByKey, err = parsePairs(strings.Split(fields[1], ","))
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	default:
		return nil, errors.NewMalformed("kind", kind, "unknown payload kind")
	}
}

func parsePairs(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, errors.NewMalformed("pair", pair, "expected key=value")
		}
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, errors.NewMalformed("key", k, "bad escape")
		}
		f, err := parseFloat(key, v)
		if err != nil {
			return nil, err
		}
		out[key] = f
	}
	return out, nil
}

func parseFloat(field, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewMalformed(field, s, "not a number")
	}
	return v, nil
}
