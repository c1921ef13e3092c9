package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/xtxerr/relayhist/internal/compress"
	"github.com/xtxerr/relayhist/internal/history"
)

// Requirements is a storage estimate for steady-state records.
type Requirements struct {
	Families []FamilyRequirements

	TotalIntervals    int64
	TotalStorageBytes int64
}

// FamilyRequirements is the estimate for one family.
type FamilyRequirements struct {
	Family history.Family

	// IntervalsPerRecord is the number of intervals a fully covered
	// record spanning Scale.HistoryAge keeps after compression.
	IntervalsPerRecord int64

	// BytesPerRecord is the status document size of such a record.
	BytesPerRecord int64
}

// Approximate status document line sizes: two 13-digit boundaries,
// separators and the payload.
const (
	bytesPerLineOverhead = 29
	bytesPerCounter      = 8
	bytesPerVector       = 5 * 12
	bytesPerCounts       = 96
)

// CalculateRequirements estimates storage from the tier tables and the
// configured scale.
func (c *Config) CalculateRequirements() (Requirements, error) {
	tables, err := c.Tables()
	if err != nil {
		return Requirements{}, err
	}

	var r Requirements
	for _, f := range history.AllFamilies() {
		n := intervalsPerRecord(tables[f], c.Scale.HistoryAge.D())
		fr := FamilyRequirements{
			Family:             f,
			IntervalsPerRecord: n,
			BytesPerRecord:     n * lineSize(f.Kind()),
		}
		r.Families = append(r.Families, fr)
		r.TotalIntervals += n * int64(c.Scale.Relays)
		r.TotalStorageBytes += fr.BytesPerRecord * int64(c.Scale.Relays)
	}
	return r, nil
}

// intervalsPerRecord counts the buckets of a gapless history reaching
// back span from now.
func intervalsPerRecord(t compress.Table, span time.Duration) int64 {
	var (
		n    int64
		prev time.Duration
	)
	for _, tier := range t.Tiers {
		if prev >= span {
			return n
		}
		end := min(tier.MaxAge, span)
		n += ceilDiv(end-prev, tier.Width)
		prev = tier.MaxAge
	}
	if span > prev {
		n += ceilDiv(span-prev, t.Default)
	}
	return n
}

func ceilDiv(a, b time.Duration) int64 {
	return int64((a + b - 1) / b)
}

func lineSize(k history.Kind) int64 {
	switch k {
	case history.KindVector:
		return bytesPerLineOverhead + bytesPerVector
	case history.KindCounts:
		return bytesPerLineOverhead + bytesPerCounts
	default:
		return bytesPerLineOverhead + bytesPerCounter
	}
}

// FormatRequirements returns a human-readable summary of requirements.
func (r *Requirements) FormatRequirements() string {
	var b strings.Builder
	b.WriteString("Storage Requirements\n====================\n\n")

	families := slices.Clone(r.Families)
	slices.SortFunc(families, func(a, b FamilyRequirements) int { return int(a.Family) - int(b.Family) })
	for _, f := range families {
		fmt.Fprintf(&b, "  %-8s %8s intervals/record  %10s/record\n",
			f.Family, formatNumber(f.IntervalsPerRecord), formatBytes(f.BytesPerRecord))
	}

	fmt.Fprintf(&b, "\n  Total intervals:  %s\n", formatNumber(r.TotalIntervals))
	fmt.Fprintf(&b, "  Total storage:    %s\n", formatBytes(r.TotalStorageBytes))
	return b.String()
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
		TB = 1024 * GB
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats a number with a magnitude suffix.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	return fmt.Sprintf("%.1fB", float64(n)/1000000000)
}
