package updater

import (
	"testing"
	"time"
)

func TestTally_Quantiles(t *testing.T) {
	tl := newTally()
	for i := 0; i < 50; i++ {
		tl.entity(1, 0, true, false, time.Millisecond)
		tl.entity(0, 1, false, true, 100*time.Millisecond)
	}
	tl.malformed()
	tl.skip()

	r := tl.finish(time.Now())

	if r.Entities != 100 || r.Accepted != 50 || r.Rejected != 50 || r.Stored != 50 || r.StoreFailures != 50 {
		t.Errorf("report = %s", r)
	}
	if r.Malformed != 1 || r.Skipped != 1 {
		t.Errorf("malformed=%d skipped=%d, want 1 and 1", r.Malformed, r.Skipped)
	}

	within := func(got, want time.Duration) bool {
		d := got - want
		return d >= -want/50 && d <= want/50
	}
	if !within(r.EntityP50, time.Millisecond) {
		t.Errorf("p50 = %s, want about 1ms", r.EntityP50)
	}
	if !within(r.EntityP99, 100*time.Millisecond) {
		t.Errorf("p99 = %s, want about 100ms", r.EntityP99)
	}
}

func TestTally_EmptyHasNoQuantiles(t *testing.T) {
	r := newTally().finish(time.Now())
	if r.EntityP50 != 0 || r.EntityP99 != 0 {
		t.Errorf("p50=%s p99=%s, want zero", r.EntityP50, r.EntityP99)
	}
}
