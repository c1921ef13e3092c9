package status

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/history"
	"github.com/xtxerr/relayhist/internal/logging"
)

const hour = int64(3_600_000)

func TestCodec_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		family   history.Family
		payloads []history.Payload
	}{
		{"counter", history.FamilyReadHistory, []history.Payload{
			history.Counter{Value: 0.1 + 0.2},
			history.Counter{Value: 1e-300},
			history.Counter{Value: 123456789012345678},
		}},
		{"vector", history.FamilyWeights, []history.Payload{
			history.Vector{0.1, 0.2, 1.0 / 3, 0, 5e-7},
			history.Vector(nil),
		}},
		{"counts", history.FamilyClients, []history.Payload{
			history.Counts{Total: 42},
			history.Counts{Total: 7.25, ByKey: map[string]float64{"country:de": 3, "transport:obfs4": 4.25, "odd key=,": 1}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := New(tt.family, "A0B1C2")
			var intervals []history.Interval
			for i, p := range tt.payloads {
				start := 1_395_000_000_000 + int64(i)*hour
				intervals = append(intervals, history.Interval{Start: start, End: start + hour - 1, Payload: p})
			}
			rec.Merge(intervals)

			var buf bytes.Buffer
			if err := Encode(&buf, rec); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			got, err := Decode(&buf, tt.family, "A0B1C2", logging.Discard())
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !got.History().Equal(rec.History()) {
				t.Errorf("round trip mismatch\nwant %v\ngot  %v", rec.History().Intervals(), got.History().Intervals())
			}
			if got.Dirty() {
				t.Error("decoded record should not be dirty")
			}
		})
	}
}

func TestCodec_SkipsMalformedLines(t *testing.T) {
	doc := strings.Join([]string{
		"# uptime history",
		"0 3600000 1",
		"garbage",
		"3600000 7200000 abc",
		"7200000 7200000 1",
		"",
		"7200000 10800000 1",
		"7200000 9000000 1",
	}, "\n")

	rec, err := Unmarshal([]byte(doc), history.FamilyUptime, "network", logging.Discard())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rec.History().Len() != 2 {
		t.Fatalf("got %d intervals, want 2", rec.History().Len())
	}
	if err := rec.History().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDecodeInterval_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind history.Kind
	}{
		{"too short", "0 1", history.KindCounter},
		{"bad start", "x 1 1", history.KindCounter},
		{"bad end", "0 y 1", history.KindCounter},
		{"extra counter field", "0 1 1 2", history.KindCounter},
		{"bad vector component", "0 1 0.1,z", history.KindVector},
		{"bad pair", "0 1 5 country", history.KindCounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInterval(tt.line, tt.kind)
			if !errors.IsMalformed(err) {
				t.Errorf("DecodeInterval(%q) = %v, want malformed", tt.line, err)
			}
		})
	}

	if _, err := DecodeInterval("5 5 1", history.KindCounter); !errors.Is(err, errors.ErrInvalidInterval) {
		t.Errorf("empty interval: got %v", err)
	}
}

func TestObservation_Validate(t *testing.T) {
	iv := func(p history.Payload) history.Interval {
		return history.Interval{Start: 0, End: hour, Payload: p}
	}

	tests := []struct {
		name    string
		obs     Observation
		wantErr error
	}{
		{"uptime", Observation{history.FamilyUptime, "AB12", iv(history.Counter{Value: 1})}, nil},
		{"weights", Observation{history.FamilyWeights, "AB12", iv(history.Vector{0.1, 0.2, 0.3, 0.4, 0})}, nil},
		{"clients", Observation{history.FamilyClients, "AB12", iv(history.Counts{Total: 3, ByKey: map[string]float64{"de": 3}})}, nil},
		{"unknown family", Observation{history.Family(99), "AB12", iv(history.Counter{Value: 1})}, errors.ErrUnknownFamily},
		{"bad entity", Observation{history.FamilyUptime, "../x", iv(history.Counter{Value: 1})}, errors.ErrMalformedPayload},
		{"empty interval", Observation{history.FamilyUptime, "AB12", history.Interval{Start: hour, End: hour, Payload: history.Counter{Value: 1}}}, errors.ErrInvalidInterval},
		{"nil payload", Observation{history.FamilyUptime, "AB12", iv(nil)}, errors.ErrMalformedPayload},
		{"vector for uptime", Observation{history.FamilyUptime, "AB12", iv(history.Vector{1, 2})}, errors.ErrMalformedPayload},
		{"counter for weights", Observation{history.FamilyWeights, "AB12", iv(history.Counter{Value: 1})}, errors.ErrMalformedPayload},
		{"short weights", Observation{history.FamilyWeights, "AB12", iv(history.Vector{1, 2})}, errors.ErrMalformedPayload},
		{"negative counter", Observation{history.FamilyReadHistory, "AB12", iv(history.Counter{Value: -1})}, errors.ErrMalformedPayload},
		{"empty client key", Observation{history.FamilyClients, "AB12", iv(history.Counts{Total: 1, ByKey: map[string]float64{"": 1}})}, errors.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.obs.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseObservation(t *testing.T) {
	tests := []struct {
		name    string
		raw     RawObservation
		wantErr error
	}{
		{"uptime", RawObservation{Family: "uptime", Entity: "AB12", Start: 0, End: hour, Fields: []string{"1"}}, nil},
		{"weights", RawObservation{Family: "weights", Entity: "AB12", Start: 0, End: hour, Fields: []string{"0.1", "0.2", "0.3", "0.4", "0"}}, nil},
		{"clients", RawObservation{Family: "clients", Entity: "AB12", Start: 0, End: hour, Fields: []string{"10", "country:de=4", "country:us=6"}}, nil},
		{"unknown family", RawObservation{Family: "flags", Entity: "AB12", Start: 0, End: hour, Fields: []string{"1"}}, errors.ErrUnknownFamily},
		{"empty entity", RawObservation{Family: "uptime", Start: 0, End: hour, Fields: []string{"1"}}, errors.ErrMalformedPayload},
		{"entity with slash", RawObservation{Family: "uptime", Entity: "a/b", Start: 0, End: hour, Fields: []string{"1"}}, errors.ErrMalformedPayload},
		{"reversed interval", RawObservation{Family: "uptime", Entity: "AB12", Start: hour, End: 0, Fields: []string{"1"}}, errors.ErrInvalidInterval},
		{"non-numeric", RawObservation{Family: "read", Entity: "AB12", Start: 0, End: hour, Fields: []string{"lots"}}, errors.ErrMalformedPayload},
		{"negative", RawObservation{Family: "write", Entity: "AB12", Start: 0, End: hour, Fields: []string{"-1"}}, errors.ErrMalformedPayload},
		{"infinite", RawObservation{Family: "write", Entity: "AB12", Start: 0, End: hour, Fields: []string{"+Inf"}}, errors.ErrMalformedPayload},
		{"short weights", RawObservation{Family: "weights", Entity: "AB12", Start: 0, End: hour, Fields: []string{"0.1"}}, errors.ErrMalformedPayload},
		{"clients without total", RawObservation{Family: "clients", Entity: "AB12", Start: 0, End: hour}, errors.ErrMalformedPayload},
		{"clients bad pair", RawObservation{Family: "clients", Entity: "AB12", Start: 0, End: hour, Fields: []string{"10", "de"}}, errors.ErrMalformedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, err := ParseObservation(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseObservation: %v", err)
			}
			if obs.Family.String() != tt.raw.Family {
				t.Errorf("family = %s, want %s", obs.Family, tt.raw.Family)
			}
			if obs.Interval.Payload.Kind() != obs.Family.Kind() {
				t.Errorf("payload kind %s for family %s", obs.Interval.Payload.Kind(), obs.Family)
			}
		})
	}
}

func TestRecord_DirtyOnlyOnAccept(t *testing.T) {
	rec := New(history.FamilyUptime, "AB12")
	iv := history.Interval{Start: 0, End: hour, Payload: history.Counter{Value: 1}}

	if n := rec.Merge([]history.Interval{iv}); n != 1 || !rec.Dirty() {
		t.Fatalf("first merge: accepted %d, dirty %v", n, rec.Dirty())
	}

	rec.ClearDirty()
	if n := rec.Merge([]history.Interval{iv}); n != 0 || rec.Dirty() {
		t.Fatalf("replay: accepted %d, dirty %v", n, rec.Dirty())
	}
}

func TestRecord_CompressLeavesDirtyAlone(t *testing.T) {
	c, err := compress.New(nil)
	if err != nil {
		t.Fatalf("compress.New: %v", err)
	}

	rec := New(history.FamilyUptime, "AB12")
	for i := int64(0); i < 12; i++ {
		rec.Merge([]history.Interval{{Start: i * hour, End: (i + 1) * hour, Payload: history.Counter{Value: 1}}})
	}
	rec.ClearDirty()

	now := int64(400 * 24 * hour)
	if merges := rec.Compress(c, now); merges == 0 {
		t.Fatal("expected merges for old data")
	}
	if rec.Dirty() {
		t.Error("compression alone must not mark the record dirty")
	}
	if rec.History().Covered() != 12*hour {
		t.Errorf("covered %d, want %d", rec.History().Covered(), 12*hour)
	}
}

func TestGroup(t *testing.T) {
	mk := func(f history.Family, entity string) Observation {
		return Observation{Family: f, Entity: entity}
	}
	order, groups := Group([]Observation{
		mk(history.FamilyUptime, "B"),
		mk(history.FamilyUptime, "A"),
		mk(history.FamilyWeights, "B"),
		mk(history.FamilyUptime, "B"),
	})

	want := []string{"uptime/B", "uptime/A", "weights/B"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", order, want)
	}
	if len(groups["uptime/B"]) != 2 {
		t.Errorf("uptime/B has %d observations, want 2", len(groups["uptime/B"]))
	}
}
