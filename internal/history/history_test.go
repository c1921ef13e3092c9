package history

import (
	"math/rand"
	"testing"
	"time"
)

const hour = int64(time.Hour / time.Millisecond)

func iv(start, end int64, v float64) Interval {
	return Interval{Start: start, End: end, Payload: Counter{Value: v}}
}

func TestMerge_AcceptsDisjoint(t *testing.T) {
	h := New()

	n := h.Merge([]Interval{
		iv(2*hour, 3*hour, 1),
		iv(0, hour, 1),
		iv(hour, 2*hour, 1),
	})
	if n != 3 {
		t.Fatalf("accepted %d, want 3", n)
	}
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for i := 0; i < h.Len(); i++ {
		if got := h.At(i).Start; got != int64(i)*hour {
			t.Errorf("interval %d starts at %d", i, got)
		}
	}
}

func TestMerge_RejectsOverlaps(t *testing.T) {
	h := New(iv(hour, 3*hour, 1), iv(5*hour, 6*hour, 1))

	tests := []struct {
		name string
		c    Interval
		want int
	}{
		{"duplicate", iv(hour, 3*hour, 1), 0},
		{"same start shorter", iv(hour, 2*hour, 1), 0},
		{"overlaps predecessor", iv(2*hour, 4*hour, 1), 0},
		{"overlaps successor", iv(4*hour, 5*hour+1, 1), 0},
		{"contains existing", iv(0, 7*hour, 1), 0},
		{"empty", iv(4*hour, 4*hour, 1), 0},
		{"reversed", iv(4*hour+1, 4*hour, 1), 0},
		{"fits gap exactly", iv(3*hour, 5*hour, 1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := h.Clone()
			if got := c.Merge([]Interval{tt.c}); got != tt.want {
				t.Errorf("Merge accepted %d, want %d", got, tt.want)
			}
			if err := c.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestMerge_OverlappingCandidatesInOneBatch(t *testing.T) {
	h := New()
	n := h.Merge([]Interval{iv(0, 2*hour, 1), iv(hour, 3*hour, 1)})
	if n != 1 {
		t.Fatalf("accepted %d, want 1", n)
	}
	if first, _ := h.First(); first.End != 2*hour {
		t.Errorf("kept [%d,%d), want the earlier candidate", first.Start, first.End)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	batch := make([]Interval, 0, 200)
	for i := 0; i < 200; i++ {
		start := rng.Int63n(500) * hour
		length := (rng.Int63n(4) + 1) * hour
		batch = append(batch, iv(start, start+length, float64(i)))
	}

	h := New()
	h.Merge(batch)
	if err := h.Validate(); err != nil {
		t.Fatalf("Validate after first merge: %v", err)
	}
	snapshot := h.Clone()

	for round := 0; round < 3; round++ {
		rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
		if n := h.Merge(batch); n != 0 {
			t.Fatalf("round %d: replay accepted %d intervals", round, n)
		}
		if !h.Equal(snapshot) {
			t.Fatalf("round %d: history changed on replay", round)
		}
	}
}

func TestFromSorted_RejectsOverlap(t *testing.T) {
	_, err := FromSorted([]Interval{iv(0, 2*hour, 1), iv(hour, 3*hour, 1)})
	if err == nil {
		t.Fatal("expected overlap error")
	}

	h, err := FromSorted([]Interval{iv(0, hour, 1), iv(hour, 2*hour, 1)})
	if err != nil {
		t.Fatalf("FromSorted: %v", err)
	}
	if h.Covered() != 2*hour {
		t.Errorf("Covered = %d, want %d", h.Covered(), 2*hour)
	}
}

func TestRules(t *testing.T) {
	counter := FamilyReadHistory.Rule()
	got := counter.Combine(Counter{Value: 3}, hour, Counter{Value: 4}, 3*hour)
	if !got.Equal(Counter{Value: 7}) {
		t.Errorf("counter combine = %v", got)
	}

	vector := FamilyWeights.Rule()
	got = vector.Combine(Vector{0.1, 0.4}, hour, Vector{0.5, 0.0}, 3*hour)
	want := Vector{0.4, 0.1}
	gv := got.(Vector)
	for i := range want {
		if d := gv[i] - want[i]; d > 1e-12 || d < -1e-12 {
			t.Errorf("vector[%d] = %v, want %v", i, gv[i], want[i])
		}
	}
	if id := vector.Combine(vector.Identity(), 0, Vector{0.2}, hour); !id.Equal(Vector{0.2}) {
		t.Errorf("identity combine = %v", id)
	}

	counts := FamilyClients.Rule()
	got = counts.Combine(
		Counts{Total: 10, ByKey: map[string]float64{"country:de": 4}},
		hour,
		Counts{Total: 5, ByKey: map[string]float64{"country:de": 1, "transport:obfs4": 2}},
		hour,
	)
	wantCounts := Counts{Total: 15, ByKey: map[string]float64{"country:de": 5, "transport:obfs4": 2}}
	if !got.Equal(wantCounts) {
		t.Errorf("counts combine = %v, want %v", got, wantCounts)
	}
}

func TestParseFamily(t *testing.T) {
	for _, f := range AllFamilies() {
		got, err := ParseFamily(f.String())
		if err != nil {
			t.Fatalf("ParseFamily(%q): %v", f, err)
		}
		if got != f {
			t.Errorf("ParseFamily(%q) = %v", f, got)
		}
	}
	if _, err := ParseFamily("bogus"); err == nil {
		t.Error("expected error for unknown family")
	}
}
