package graph

import (
	"fmt"
	"time"

	"github.com/xtxerr/relayhist/internal/history"
)

// Spec declares one rendered series: a look-back window and its grid
// resolution.
type Spec struct {
	Name   string
	Domain time.Duration
	Width  time.Duration
}

// Validate checks that the spec can be rendered.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("graph spec: name is required")
	}
	if s.Width < time.Second || s.Width%time.Second != 0 {
		return fmt.Errorf("graph %s: width must be a positive whole number of seconds, got %s", s.Name, s.Width)
	}
	if s.Domain < s.Width {
		return fmt.Errorf("graph %s: domain %s shorter than width %s", s.Name, s.Domain, s.Width)
	}
	return nil
}

const (
	day = 24 * time.Hour

	threeDays   = 3 * day
	oneWeek     = 7 * day
	oneMonth    = 31 * day
	threeMonths = 92 * day
	oneYear     = 366 * day
	fiveYears   = 5 * oneYear
)

var (
	specThreeDays   = Spec{Name: "3_days", Domain: threeDays, Width: 15 * time.Minute}
	specOneWeek     = Spec{Name: "1_week", Domain: oneWeek, Width: time.Hour}
	specOneMonth    = Spec{Name: "1_month", Domain: oneMonth, Width: 4 * time.Hour}
	specThreeMonths = Spec{Name: "3_months", Domain: threeMonths, Width: 12 * time.Hour}
	specOneYear     = Spec{Name: "1_year", Domain: oneYear, Width: 2 * day}
	specFiveYears   = Spec{Name: "5_years", Domain: fiveYears, Width: 10 * day}
)

// Catalog returns the built-in graph catalog for a family, shortest
// window first.
func Catalog(f history.Family) []Spec {
	switch f {
	case history.FamilyReadHistory, history.FamilyWriteHistory:
		return []Spec{specThreeDays, specOneWeek, specOneMonth, specThreeMonths, specOneYear, specFiveYears}
	case history.FamilyWeights:
		return []Spec{specOneWeek, specOneMonth, specThreeMonths, specOneYear, specFiveYears}
	case history.FamilyClients:
		return []Spec{
			{Name: "1_week", Domain: oneWeek, Width: day},
			{Name: "1_month", Domain: oneMonth, Width: day},
			{Name: "3_months", Domain: threeMonths, Width: day},
			specOneYear,
			specFiveYears,
		}
	default:
		return []Spec{specOneMonth, specThreeMonths, specOneYear, specFiveYears}
	}
}
