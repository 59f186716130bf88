package series

import (
	"time"

	"fxrec/internal/rates"
)

// DefaultFillLimit is the longest run of missing days carried forward.
const DefaultFillLimit = 3

// ForwardFill returns s restricted to [start, end], with every missing day in
// [start, fillEnd] carried forward from the latest prior observation for at most limit
// consecutive days. Days before the first in-range observation stay absent, as do days of
// a gap beyond the limit. Observations after fillEnd but within end are kept unfilled.
func ForwardFill(s rates.Series, start, end, fillEnd time.Time, limit int) rates.Series {
	start, end, fillEnd = rates.Day(start), rates.Day(end), rates.Day(fillEnd)
	if fillEnd.After(end) {
		fillEnd = end
	}
	if limit < 0 {
		limit = 0
	}

	idx := make(map[time.Time]rates.Observation, len(s))
	for _, o := range s {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		idx[o.Date] = o
	}

	out := make(rates.Series, 0, len(idx))
	var (
		last    rates.Observation
		seen    bool
		missing int
	)
	for d := start; !d.After(fillEnd); d = d.AddDate(0, 0, 1) {
		if o, ok := idx[d]; ok {
			out = append(out, o)
			last, seen = o, true
			missing = 0
			continue
		}
		if !seen {
			continue
		}
		missing++
		if missing <= limit {
			out = append(out, rates.Observation{Date: d, Rate: last.Rate})
		}
	}

	tail := fillEnd.AddDate(0, 0, 1)
	if tail.Before(start) {
		tail = start
	}
	for d := tail; !d.After(end); d = d.AddDate(0, 0, 1) {
		if o, ok := idx[d]; ok {
			out = append(out, o)
		}
	}
	return out
}
