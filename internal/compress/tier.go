package compress

import (
	"fmt"
	"time"

	"github.com/xtxerr/relayhist/internal/history"
)

// Common widths and ages used by the default tier tables.
const (
	FifteenMinutes = 15 * time.Minute
	OneHour        = time.Hour
	FourHours      = 4 * time.Hour
	TwelveHours    = 12 * time.Hour
	OneDay         = 24 * time.Hour
	TwoDays        = 2 * OneDay
	ThreeDays      = 3 * OneDay
	OneWeek        = 7 * OneDay
	TenDays        = 10 * OneDay

	// Rough calendar spans. They are fixed durations, not calendar math.
	RoughlyOneMonth    = 31 * OneDay
	RoughlyThreeMonths = 92 * OneDay
	RoughlyOneYear     = 366 * OneDay
)

// Tier maps an age threshold to a bucket width. Intervals ending at most
// MaxAge before now are compressed into buckets of Width.
type Tier struct {
	MaxAge time.Duration
	Width  time.Duration
}

// String returns e.g. "<=168h0m0s:1h0m0s".
func (t Tier) String() string {
	return fmt.Sprintf("<=%s:%s", t.MaxAge, t.Width)
}

// Table is an ordered tier list, ascending by age, plus the width used
// for anything older than the last tier.
type Table struct {
	Tiers   []Tier
	Default time.Duration
}

// WidthFor returns the bucket width in milliseconds for an interval whose
// end lies age milliseconds before now.
func (t Table) WidthFor(age int64) int64 {
	for _, tier := range t.Tiers {
		if age <= tier.MaxAge.Milliseconds() {
			return tier.Width.Milliseconds()
		}
	}
	return t.Default.Milliseconds()
}

// Validate checks that ages ascend, widths never shrink with age, and
// each width divides the next coarser one.
func (t Table) Validate() error {
	if t.Default <= 0 {
		return fmt.Errorf("default width must be positive, got %s", t.Default)
	}

	widths := make([]time.Duration, 0, len(t.Tiers)+1)
	for i, tier := range t.Tiers {
		if tier.Width <= 0 {
			return fmt.Errorf("tier %d: width must be positive, got %s", i, tier.Width)
		}
		if tier.Width%time.Millisecond != 0 {
			return fmt.Errorf("tier %d: width %s is not a whole number of milliseconds", i, tier.Width)
		}
		if i > 0 && tier.MaxAge <= t.Tiers[i-1].MaxAge {
			return fmt.Errorf("tier %d: max age %s not greater than %s", i, tier.MaxAge, t.Tiers[i-1].MaxAge)
		}
		widths = append(widths, tier.Width)
	}
	widths = append(widths, t.Default)

	for i := 1; i < len(widths); i++ {
		finer, coarser := widths[i-1], widths[i]
		if coarser < finer {
			return fmt.Errorf("width %s follows finer width %s", coarser, finer)
		}
		if coarser%finer != 0 {
			return fmt.Errorf("width %s is not a multiple of %s", coarser, finer)
		}
	}

	return nil
}

// DefaultTable returns the built-in tier table for a family.
func DefaultTable(f history.Family) Table {
	switch f {
	case history.FamilyReadHistory, history.FamilyWriteHistory:
		return Table{
			Tiers: []Tier{
				{MaxAge: ThreeDays, Width: FifteenMinutes},
				{MaxAge: OneWeek, Width: OneHour},
				{MaxAge: RoughlyOneMonth, Width: FourHours},
				{MaxAge: RoughlyThreeMonths, Width: TwelveHours},
				{MaxAge: RoughlyOneYear, Width: TwoDays},
			},
			Default: TenDays,
		}
	case history.FamilyClients:
		return Table{
			Tiers: []Tier{
				{MaxAge: RoughlyThreeMonths, Width: OneDay},
				{MaxAge: RoughlyOneYear, Width: TwoDays},
			},
			Default: TenDays,
		}
	default:
		return Table{
			Tiers: []Tier{
				{MaxAge: OneWeek, Width: OneHour},
				{MaxAge: RoughlyOneMonth, Width: FourHours},
				{MaxAge: RoughlyThreeMonths, Width: TwelveHours},
				{MaxAge: RoughlyOneYear, Width: TwoDays},
			},
			Default: TenDays,
		}
	}
}

// DefaultTables returns the built-in tables for every family.
func DefaultTables() map[history.Family]Table {
	out := make(map[history.Family]Table, len(history.AllFamilies()))
	for _, f := range history.AllFamilies() {
		out[f] = DefaultTable(f)
	}
	return out
}
