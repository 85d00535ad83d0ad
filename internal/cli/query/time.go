// Package query parses the time arguments of the alertql commands.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/FrankChen021/bithon-sub017/internal/alertql"
)

// RangeOptions specifies time range parsing options
type RangeOptions struct {
	Since string // Relative length ending at To (e.g. "15m", "1h", "7d")
	From  string // Absolute or relative start time
	To    string // Absolute or relative end time, now when empty
}

// Range is a half-open [Start, End) interval in UTC.
type Range struct {
	Start time.Time
	End   time.Time
}

// Length returns End - Start.
func (r Range) Length() time.Duration {
	return r.End.Sub(r.Start)
}

func (r Range) String() string {
	if r.Start.YearDay() == r.End.YearDay() && r.Start.Year() == r.End.Year() {
		return fmt.Sprintf("%s - %s (%s)",
			r.Start.Format("15:04:05"),
			r.End.Format("15:04:05"),
			FormatDuration(r.Length()),
		)
	}
	return fmt.Sprintf("%s - %s (%s)",
		r.Start.Format("2006-01-02 15:04"),
		r.End.Format("2006-01-02 15:04"),
		FormatDuration(r.Length()),
	)
}

// ParseRange resolves range options against now.
func ParseRange(opts RangeOptions, now time.Time) (Range, error) {
	var r Range
	var err error

	r.End = now.UTC()
	if opts.To != "" {
		if r.End, err = ParseTime(opts.To, now); err != nil {
			return Range{}, fmt.Errorf("invalid 'to' time: %w", err)
		}
	}

	switch {
	case opts.From != "":
		if r.Start, err = ParseTime(opts.From, now); err != nil {
			return Range{}, fmt.Errorf("invalid 'from' time: %w", err)
		}
	case opts.Since != "":
		d, err := ParseDuration(opts.Since)
		if err != nil {
			return Range{}, fmt.Errorf("invalid 'since' duration: %w", err)
		}
		r.Start = r.End.Add(-d)
	default:
		return Range{}, fmt.Errorf("start time is required (use --since or --from)")
	}

	if !r.Start.Before(r.End) {
		return Range{}, fmt.Errorf("start time must be before end time")
	}
	return r, nil
}

var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime parses an absolute time, a unix timestamp in seconds, "now" or
// "now-<duration>". Times without a zone are taken as UTC.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if lower == "now" {
		return now.UTC(), nil
	}
	if rest, ok := strings.CutPrefix(lower, "now-"); ok {
		d, err := ParseDuration(rest)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(-d).UTC(), nil
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}

	for _, format := range timeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// ParseDuration parses a positive duration. Single-unit values follow the alert
// expression syntax (s, m, h, d) plus weeks; anything else goes through time.ParseDuration.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid duration %s: must not be negative", s)
	}

	if weeks, ok := strings.CutSuffix(s, "w"); ok {
		n, err := strconv.Atoi(weeks)
		if err != nil {
			return 0, fmt.Errorf("invalid duration format: %s (examples: 15m, 1h, 24h, 7d)", s)
		}
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	}
	if d, err := alertql.ParseDuration(s); err == nil {
		return d.Std(), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	return 0, fmt.Errorf("invalid duration format: %s (examples: 15m, 1h, 24h, 7d)", s)
}

// steps are the candidate time series intervals, smallest first.
var steps = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

// AutoStep picks the smallest interval yielding at most maxPoints buckets over r.
func AutoStep(r Range, maxPoints int) time.Duration {
	if maxPoints <= 0 {
		maxPoints = 60
	}
	for _, step := range steps {
		if r.Length()/step <= time.Duration(maxPoints) {
			return step
		}
	}
	return steps[len(steps)-1]
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	days := int(d.Hours() / 24)
	if days < 7 || days%7 != 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dw", days/7)
}
