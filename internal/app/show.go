package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"fxrec/internal/audit"
	"fxrec/internal/rates"
	"fxrec/internal/series"
)

func renderRates(out io.Writer, rows []series.Row) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tBase\tTarget\tRate")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			row.Date.Format(rates.DateLayout),
			row.Base,
			row.Target,
			row.Rate.StringFixed(series.DefaultPrecision),
		)
	}
	return writer.Flush()
}

func renderEvent(out io.Writer, ev audit.Event) {
	if ev.Total > 0 {
		fmt.Fprintf(out, "[%s %d/%d] %s\n", ev.Phase, ev.Current, ev.Total, sanitizeInline(ev.Message))
		return
	}
	fmt.Fprintf(out, "[%s] %s\n", ev.Phase, sanitizeInline(ev.Message))
}

func renderAudit(out io.Writer, res *audit.Result) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Row\tDate\tBase\tSource\tUser Rate\tRate\tVariance%\tVia\tStatus\tMessage")
	for _, row := range res.Rows {
		fields := auditFields(row)
		fmt.Fprintln(writer, strings.Join(append([]string{fmt.Sprint(row.Number)}, fields...), "\t"))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	s := res.Summary
	mode := "live"
	if s.TestingMode {
		mode = "testing (synthetic rates)"
	}
	fmt.Fprintf(out, "\nTotal: %d  Passed: %d  Exceptions: %d  Errors: %d  Mode: %s\n",
		s.TotalRows, s.Passed, s.Exceptions, s.APIErrors, mode)
	return nil
}

// auditFields renders everything after the row number, shared by table and CSV output.
func auditFields(row audit.Row) []string {
	date := ""
	if !row.Date.IsZero() {
		date = row.Date.Format(rates.DateLayout)
	}
	user := ""
	if !row.UserRate.IsZero() {
		user = row.UserRate.String()
	}
	resolved, variance := "", ""
	if row.ResolvedRate != nil {
		resolved = row.ResolvedRate.StringFixed(6)
	}
	if row.VariancePct != nil {
		variance = row.VariancePct.StringFixed(2)
	}
	return []string{
		date,
		string(row.Base),
		string(row.Source),
		user,
		resolved,
		variance,
		string(row.RateSource),
		string(row.Status),
		sanitizeInline(row.Message),
	}
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
