package alertql

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeUnit is the unit suffix of a duration literal.
type TimeUnit string

const (
	UnitSecond TimeUnit = "s"
	UnitMinute TimeUnit = "m"
	UnitHour   TimeUnit = "h"
	UnitDay    TimeUnit = "d"
)

func (u TimeUnit) seconds() int64 {
	switch u {
	case UnitSecond:
		return 1
	case UnitMinute:
		return 60
	case UnitHour:
		return 3600
	case UnitDay:
		return 86400
	default:
		return 0
	}
}

// Duration is a duration literal such as 5m or -7d. The value keeps its sign and
// unit so the text form is reproduced exactly.
type Duration struct {
	Value int64
	Unit  TimeUnit
}

// Seconds returns the signed length of the duration in seconds.
func (d Duration) Seconds() int64 {
	return d.Value * d.Unit.seconds()
}

// Std converts the duration to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d.Seconds()) * time.Second
}

func (d Duration) String() string {
	return strconv.FormatInt(d.Value, 10) + string(d.Unit)
}

// ParseDuration parses text like "5m", "-7d" or "30s".
func ParseDuration(s string) (Duration, error) {
	if len(s) < 2 {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	unit := TimeUnit(s[len(s)-1:])
	if unit.seconds() == 0 {
		return Duration{}, fmt.Errorf("invalid duration %q: unknown unit %q, expected one of s, m, h, d", s, string(unit))
	}
	v, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil {
		return Duration{}, fmt.Errorf("invalid duration %q", s)
	}
	return Duration{Value: v, Unit: unit}, nil
}

// HumanNumber is a number written with a magnitude suffix, e.g. 10K (10*1000) or
// 2Mi (2*1024*1024).
type HumanNumber struct {
	Text  string
	Value float64
}

var humanSuffixes = []struct {
	suffix string
	scale  float64
}{
	{"Ki", 1 << 10},
	{"Mi", 1 << 20},
	{"Gi", 1 << 30},
	{"Ti", 1 << 40},
	{"Pi", 1 << 50},
	{"K", 1e3},
	{"M", 1e6},
	{"G", 1e9},
	{"T", 1e12},
	{"P", 1e15},
}

// ParseHumanNumber parses a number with a K/M/G/T/P or Ki/Mi/Gi/Ti/Pi suffix.
func ParseHumanNumber(s string) (HumanNumber, error) {
	for _, hs := range humanSuffixes {
		if !strings.HasSuffix(s, hs.suffix) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, hs.suffix), 64)
		if err != nil {
			return HumanNumber{}, fmt.Errorf("invalid number %q", s)
		}
		return HumanNumber{Text: s, Value: v * hs.scale}, nil
	}
	return HumanNumber{}, fmt.Errorf("invalid number %q: unknown suffix", s)
}

func (h HumanNumber) String() string { return h.Text }

// Percentage is a number written with a trailing '%'. Fraction is value/100.
type Percentage struct {
	Text     string
	Fraction float64
}

// ParsePercentage parses text like "50%" or "12.5%".
func ParsePercentage(s string) (Percentage, error) {
	if !strings.HasSuffix(s, "%") {
		return Percentage{}, fmt.Errorf("invalid percentage %q", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return Percentage{}, fmt.Errorf("invalid percentage %q", s)
	}
	return Percentage{Text: s, Fraction: v / 100}, nil
}

func (p Percentage) String() string { return p.Text }

// LongValue returns the value of an integer literal.
func (l *Literal) LongValue() (int64, bool) {
	v, ok := l.Value.(int64)
	return v, ok
}

// DoubleValue widens any numeric literal to float64.
func (l *Literal) DoubleValue() (float64, bool) {
	if !l.IsNumeric() {
		return 0, false
	}
	return l.Float64()
}

// BoolValue returns the value of a boolean literal.
func (l *Literal) BoolValue() (bool, bool) {
	v, ok := l.Value.(bool)
	return v, ok
}

// TimeValue returns the value of a timestamp literal.
func (l *Literal) TimeValue() (time.Time, bool) {
	v, ok := l.Value.(time.Time)
	return v, ok
}

// parseNumberLiteral classifies the text of a number token.
func parseNumberLiteral(s string) (*Literal, error) {
	if strings.HasSuffix(s, "%") {
		p, err := ParsePercentage(s)
		if err != nil {
			return nil, err
		}
		return &Literal{Type: LitPercentage, Value: p}, nil
	}

	last := s[len(s)-1]
	if isLetter(rune(last)) {
		if TimeUnit(s[len(s)-1:]).seconds() > 0 && !strings.ContainsRune(s, '.') {
			d, err := ParseDuration(s)
			if err == nil {
				return NewDurationLiteral(d), nil
			}
		}
		h, err := ParseHumanNumber(s)
		if err != nil {
			return nil, err
		}
		return &Literal{Type: LitNumber, Value: h}, nil
	}

	if strings.ContainsRune(s, '.') {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		return NewDouble(v), nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	return NewLong(v), nil
}
