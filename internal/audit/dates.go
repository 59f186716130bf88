package audit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/xuri/excelize/v2"

	"fxrec/internal/rates"
)

// DefaultDateFormat is assumed when the caller declares none.
const DefaultDateFormat = "YYYY-MM-DD"

// ErrDate matches unparseable row dates.
var ErrDate = errors.New("audit: invalid date")

// Excel serials outside this range are treated as plain numbers.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465 // 9999-12-31
)

// DateFormat is the component order read from a declared format such as "DD/MM/YYYY".
type DateFormat struct {
	// order holds 'Y', 'M' and 'D' in the sequence they appear.
	order    [3]byte
	complete bool
	DayFirst bool
}

// ParseDateFormat inspects the first Y, M and D tokens of format. A format missing
// either D or M is treated as month-first.
func ParseDateFormat(format string) DateFormat {
	upper := strings.ToUpper(format)
	if upper == "" {
		upper = DefaultDateFormat
	}
	y, m, d := strings.IndexByte(upper, 'Y'), strings.IndexByte(upper, 'M'), strings.IndexByte(upper, 'D')

	df := DateFormat{DayFirst: d >= 0 && m >= 0 && d < m}
	if y < 0 || m < 0 || d < 0 {
		return df
	}
	type pos struct {
		tok byte
		at  int
	}
	ps := []pos{{'Y', y}, {'M', m}, {'D', d}}
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].at < ps[j-1].at; j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
	for i, p := range ps {
		df.order[i] = p.tok
	}
	df.complete = true
	return df
}

// ParseDate turns a cell value into a calendar day. It tries, in order: the numeric
// component order of the declared format, an Excel serial day number, then a flexible
// parse honouring the format's day-first preference.
func ParseDate(value, format string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrDate)
	}
	df := ParseDateFormat(format)

	if t, ok := df.parseOrdered(v); ok {
		return t, nil
	}
	if t, ok := parseExcelSerial(v); ok {
		return t, nil
	}
	t, err := dateparse.ParseAny(v, dateparse.PreferMonthFirst(!df.DayFirst))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrDate, value)
	}
	return rates.Day(t), nil
}

// parseOrdered handles three numeric components split by '-', '/', '.' or spaces,
// ignoring a trailing time-of-day.
func (df DateFormat) parseOrdered(v string) (time.Time, bool) {
	if !df.complete {
		return time.Time{}, false
	}
	if i := strings.IndexAny(v, "T "); i > 0 && strings.Contains(v[i:], ":") {
		v = v[:i]
	}
	tokens := strings.FieldsFunc(v, func(r rune) bool {
		return r == '-' || r == '/' || r == '.' || r == ' '
	})
	if len(tokens) != 3 {
		return time.Time{}, false
	}

	var y, m, d int
	for i, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		switch df.order[i] {
		case 'Y':
			switch len(tok) {
			case 4:
				y = n
			case 2:
				y = 2000 + n
			default:
				return time.Time{}, false
			}
		case 'M':
			if len(tok) > 2 {
				return time.Time{}, false
			}
			m = n
		case 'D':
			if len(tok) > 2 {
				return time.Time{}, false
			}
			d = n
		}
	}
	if m < 1 || m > 12 || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow such as 31 February; reject it.
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func parseExcelSerial(v string) (time.Time, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < minExcelSerial || f > maxExcelSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return time.Time{}, false
	}
	return rates.Day(t), true
}
