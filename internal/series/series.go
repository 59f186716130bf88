package series

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fxrec/internal/rates"
	"fxrec/internal/routing"
)

// DefaultPrecision is the number of decimal places in output rates.
const DefaultPrecision int32 = 6

var one = decimal.NewFromInt(1)

// Row is one resolved rate in the output table.
type Row struct {
	Base   rates.Code      `json:"base"`
	Target rates.Code      `json:"target"`
	Date   time.Time       `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
}

// Result is the assembled table plus a warning for every pair left out.
type Result struct {
	Rows     []Row    `json:"rows"`
	Warnings []string `json:"warnings,omitempty"`
}

// Options tune assembly. Zero values pick the defaults; Now anchors the "yesterday" cap.
type Options struct {
	FillLimit int
	Precision int32
	Now       time.Time
}

func (o Options) withDefaults() Options {
	if o.FillLimit <= 0 {
		o.FillLimit = DefaultFillLimit
	}
	if o.Precision <= 0 {
		o.Precision = DefaultPrecision
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// Assemble turns per-symbol provider series into the requested pairs. When dr is set,
// every symbol is first clipped to the range and gap-filled up to yesterday. Pairs whose
// inputs are missing are omitted and reported in Warnings.
func Assemble(responses map[string]rates.Series, routes []routing.Decision, dr *rates.DateRange, opts Options) Result {
	opts = opts.withDefaults()

	prepared := make(map[string]rates.Series, len(responses))
	for symbol, s := range responses {
		if dr != nil {
			yesterday := rates.Day(opts.Now).AddDate(0, 0, -1)
			s = ForwardFill(s, dr.Start, dr.End, yesterday, opts.FillLimit)
		}
		if len(s) > 0 {
			prepared[symbol] = s
		}
	}

	var res Result
	for _, d := range routes {
		var (
			combined rates.Series
			warning  string
		)
		switch d.Kind {
		case routing.Triangulated:
			combined, warning = triangulateRoute(prepared, d)
		default:
			combined, warning = directRoute(prepared, d)
		}
		if warning != "" {
			res.Warnings = append(res.Warnings, warning)
			continue
		}
		for _, o := range combined {
			res.Rows = append(res.Rows, Row{
				Base:   d.Pair.Base,
				Target: d.Pair.Target,
				Date:   o.Date,
				Rate:   o.Rate.Round(opts.Precision),
			})
		}
	}

	SortRows(res.Rows)
	return res
}

func directRoute(prepared map[string]rates.Series, d routing.Decision) (rates.Series, string) {
	s, ok := prepared[d.Symbol]
	if !ok {
		return nil, fmt.Sprintf("no data for %s (symbol %s); pair omitted", d.Pair, d.Symbol)
	}
	if !d.Invert {
		return s, ""
	}
	return Invert(s), ""
}

func triangulateRoute(prepared map[string]rates.Series, d routing.Decision) (rates.Series, string) {
	anchorBase, okB := prepared[d.AnchorBase]
	anchorTarget, okT := prepared[d.AnchorTarget]
	switch {
	case !okB && !okT:
		return nil, fmt.Sprintf("no data for %s: both legs %s and %s missing; pair omitted", d.Pair, d.AnchorBase, d.AnchorTarget)
	case !okB:
		return nil, fmt.Sprintf("no data for %s: leg %s missing; pair omitted", d.Pair, d.AnchorBase)
	case !okT:
		return nil, fmt.Sprintf("no data for %s: leg %s missing; pair omitted", d.Pair, d.AnchorTarget)
	}
	out := Triangulate(anchorBase, anchorTarget)
	if len(out) == 0 {
		return nil, fmt.Sprintf("no common dates for %s legs %s and %s; pair omitted", d.Pair, d.AnchorBase, d.AnchorTarget)
	}
	return out, ""
}

// Invert reciprocates every rate.
func Invert(s rates.Series) rates.Series {
	out := make(rates.Series, len(s))
	for i, o := range s {
		out[i] = rates.Observation{Date: o.Date, Rate: one.Div(o.Rate)}
	}
	return out
}

// Triangulate inner-joins two anchor-relative series on date and returns
// (1/anchorBase)*anchorTarget for every shared day.
func Triangulate(anchorBase, anchorTarget rates.Series) rates.Series {
	targets := anchorTarget.Index()
	out := make(rates.Series, 0, len(anchorBase))
	for _, b := range anchorBase {
		t, ok := targets[b.Date]
		if !ok {
			continue
		}
		// t/b is the exact form of (1/b)*t.
		out = append(out, rates.Observation{Date: b.Date, Rate: t.Div(b.Rate)})
	}
	return out
}

// InvertRows swaps base and target on every row and reciprocates the rate.
func InvertRows(rows []Row, precision int32) []Row {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{
			Base:   r.Target,
			Target: r.Base,
			Date:   r.Date,
			Rate:   one.Div(r.Rate).Round(precision),
		}
	}
	SortRows(out)
	return out
}

// SortRows orders by base, target, then date newest first.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Base != b.Base {
			return a.Base < b.Base
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Date.After(b.Date)
	})
}
