package rates

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date form used in keys, queries and output.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidCode indicates a currency code that is not three ASCII letters.
	ErrInvalidCode = errors.New("rates: invalid currency code")
	// ErrInvalidRate indicates a zero or negative rate.
	ErrInvalidRate = errors.New("rates: rate must be positive")
)

// Code is a three-letter currency identifier, always upper case.
type Code string

// Normalize trims and upper-cases a raw currency string without validating it.
func Normalize(s string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(s)))
}

// ParseCode normalises s and checks that it is three letters.
func ParseCode(s string) (Code, error) {
	c := Normalize(s)
	if len(c) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, s)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCode, s)
		}
	}
	return c, nil
}

// ParseCodes normalises every entry, dropping blanks and duplicates while keeping order.
func ParseCodes(items []string) ([]Code, error) {
	out := make([]Code, 0, len(items))
	seen := make(map[Code]struct{}, len(items))
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		c, err := ParseCode(item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// Pair is a requested (base, target) orientation.
type Pair struct {
	Base   Code `json:"base"`
	Target Code `json:"target"`
}

// Symbol renders the pair in provider BASE/QUOTE form.
func (p Pair) Symbol() string {
	return string(p.Base) + "/" + string(p.Target)
}

func (p Pair) String() string { return p.Symbol() }

// ParseSymbol splits a BASE/QUOTE symbol.
func ParseSymbol(symbol string) (Pair, error) {
	left, right, ok := strings.Cut(symbol, "/")
	if !ok {
		return Pair{}, fmt.Errorf("rates: malformed symbol %q", symbol)
	}
	base, err := ParseCode(left)
	if err != nil {
		return Pair{}, err
	}
	target, err := ParseCode(right)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Base: base, Target: target}, nil
}

// Observation is one dated rate.
type Observation struct {
	Date time.Time       `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

// Series is a date-ascending sequence of observations with unique dates.
type Series []Observation

// NewSeries validates and orders observations. Dates are truncated to calendar days;
// when a date repeats the later entry wins.
func NewSeries(obs []Observation) (Series, error) {
	byDate := make(map[time.Time]decimal.Decimal, len(obs))
	for _, o := range obs {
		if !o.Rate.IsPositive() {
			return nil, fmt.Errorf("%w: %s on %s", ErrInvalidRate, o.Rate.String(), o.Date.Format(DateLayout))
		}
		byDate[Day(o.Date)] = o.Rate
	}
	out := make(Series, 0, len(byDate))
	for d, r := range byDate {
		out = append(out, Observation{Date: d, Rate: r})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Index maps each date to its rate.
func (s Series) Index() map[time.Time]decimal.Decimal {
	idx := make(map[time.Time]decimal.Decimal, len(s))
	for _, o := range s {
		idx[o.Date] = o.Rate
	}
	return idx
}

// DateRange is an inclusive calendar-day interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange truncates both ends to days and rejects inverted ranges.
func NewDateRange(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: Day(start), End: Day(end)}
	if dr.End.Before(dr.Start) {
		return DateRange{}, fmt.Errorf("rates: end %s before start %s", dr.End.Format(DateLayout), dr.Start.Format(DateLayout))
	}
	return dr, nil
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Day returns midnight UTC of t's calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}
