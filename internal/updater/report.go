package updater

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Report summarizes one update cycle.
type Report struct {
	// Entities is the number of records the cycle worked on.
	Entities int

	// Accepted and Rejected count observations merged into or refused
	// by their histories. Rejections are overlaps and duplicates.
	Accepted int
	Rejected int

	// Stored counts records written back; StoreFailures counts records
	// whose retrieve or store failed.
	Stored        int
	StoreFailures int

	// Skipped counts records not started because the context ended.
	Skipped int

	// Malformed counts observations dropped before they reached a record.
	Malformed int

	// Duration is the wall time of the cycle. EntityP50 and EntityP99
	// are quantiles of the per-entity update time.
	Duration  time.Duration
	EntityP50 time.Duration
	EntityP99 time.Duration
}

// String implements fmt.Stringer.
func (r Report) String() string {
	return fmt.Sprintf("entities=%d accepted=%d rejected=%d stored=%d store_failures=%d skipped=%d malformed=%d duration=%s p50=%s p99=%s",
		r.Entities, r.Accepted, r.Rejected, r.Stored, r.StoreFailures, r.Skipped, r.Malformed,
		r.Duration, r.EntityP50, r.EntityP99)
}

// tally collects per-entity results from concurrent workers.
type tally struct {
	mu     sync.Mutex
	report Report
	sketch *ddsketch.DDSketch
}

func newTally() *tally {
	// 1% relative accuracy
	sketch, _ := ddsketch.NewDefaultDDSketch(0.01)
	return &tally{sketch: sketch}
}

func (t *tally) entity(accepted, rejected int, stored, failed bool, took time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.report.Entities++
	t.report.Accepted += accepted
	t.report.Rejected += rejected
	if stored {
		t.report.Stored++
	}
	if failed {
		t.report.StoreFailures++
	}
	if t.sketch != nil {
		// Add only fails for values outside the mapping's indexable
		// range, which a duration in microseconds never reaches.
		_ = t.sketch.Add(float64(took.Microseconds()))
	}
}

func (t *tally) malformed() {
	t.mu.Lock()
	t.report.Malformed++
	t.mu.Unlock()
}

func (t *tally) skip() {
	t.mu.Lock()
	t.report.Skipped++
	t.mu.Unlock()
}

func (t *tally) finish(started time.Time) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.report
	r.Duration = time.Since(started)
	if t.sketch != nil && !t.sketch.IsEmpty() {
		r.EntityP50 = quantile(t.sketch, 0.50)
		r.EntityP99 = quantile(t.sketch, 0.99)
	}
	return r
}

func quantile(s *ddsketch.DDSketch, q float64) time.Duration {
	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return time.Duration(v) * time.Microsecond
}
