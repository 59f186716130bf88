package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"fxrec/internal/audit"
	"fxrec/internal/rates"
	"fxrec/internal/series"
)

// pairSeries holds one resolved pair in ascending date order.
type pairSeries struct {
	label string
	rows  []series.Row
}

func (a *App) exportRates(rows []series.Row, opts RatesOptions) error {
	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)
	pairs := groupByPair(rows)

	total, exported := 0, 0
	for i := range pairs {
		total += len(pairs[i].rows)
		pairs[i].rows = downsampleRows(pairs[i].rows, maxPoints)
		exported += len(pairs[i].rows)
	}
	a.Logger.Info().Int("pairs", len(pairs)).Int("total", total).Int("exported", exported).Msg("exporting rates")

	if opts.CSVPath != "" {
		if err := writeRatesCSV(opts.CSVPath, pairs); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if opts.PNGPath != "" {
		if err := writeRatesPNG(opts.PNGPath, pairs); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
	}
	return nil
}

// groupByPair splits table rows (base, target, date descending) into per-pair series.
func groupByPair(rows []series.Row) []pairSeries {
	var out []pairSeries
	index := make(map[string]int)
	for _, row := range rows {
		label := rates.Pair{Base: row.Base, Target: row.Target}.Symbol()
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, pairSeries{label: label})
		}
		out[i].rows = append(out[i].rows, row)
	}
	for i := range out {
		r := out[i].rows
		for lo, hi := 0, len(r)-1; lo < hi; lo, hi = lo+1, hi-1 {
			r[lo], r[hi] = r[hi], r[lo]
		}
	}
	return out
}

func downsampleRows(rows []series.Row, max int) []series.Row {
	if max <= 0 || len(rows) <= max {
		return rows
	}
	if max == 1 {
		return rows[len(rows)-1:]
	}

	result := make([]series.Row, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func writeRatesCSV(path string, pairs []pairSeries) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "base", "target", "rate"}); err != nil {
		return err
	}
	for _, p := range pairs {
		for i := len(p.rows) - 1; i >= 0; i-- {
			row := p.rows[i]
			record := []string{
				row.Date.Format(rates.DateLayout),
				string(row.Base),
				string(row.Target),
				row.Rate.String(),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRatesPNG(path string, pairs []pairSeries) error {
	lo, hi := math.Inf(1), math.Inf(-1)
	plotted := make([]chart.Series, 0, len(pairs))
	for _, p := range pairs {
		if len(p.rows) < 2 {
			continue
		}
		x := make([]time.Time, len(p.rows))
		y := make([]float64, len(p.rows))
		for i, row := range p.rows {
			x[i] = row.Date
			y[i] = row.Rate.InexactFloat64()
			lo, hi = math.Min(lo, y[i]), math.Max(hi, y[i])
		}
		plotted = append(plotted, chart.TimeSeries{Name: p.label, XValues: x, YValues: y})
	}
	if len(plotted) == 0 {
		return errors.New("a chart needs at least two dates for one pair")
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.01, 1e-6)
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Rate",
			ValueFormatter: rateFormatter,
			Range:          &chart.ContinuousRange{Min: lo - pad, Max: hi + pad},
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func writeAuditCSV(path string, res *audit.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"row", "date", "base", "source", "user_rate", "resolved_rate", "variance_pct", "rate_source", "status", "message"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range res.Rows {
		record := append([]string{strconv.Itoa(row.Number)}, auditFields(row)...)
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
