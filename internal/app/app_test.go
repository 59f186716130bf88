package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxrec/internal/audit"
	"fxrec/internal/config"
	"fxrec/internal/rates"
	"fxrec/internal/series"
	"fxrec/internal/service"
)

func newTestApp(t *testing.T, handler http.HandlerFunc) *App {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.Provider.BaseURL = srv.URL
	cfg.Provider.APIKey = "app-test"
	cfg.Provider.QuotaRequests = 100
	cfg.Cache.Backend = "memory"

	return NewApp(cfg, zerolog.Nop(),
		service.WithClock(func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }),
		service.WithAuditOptions(audit.WithRandom(func() float64 { return 0.5 })),
	)
}

func usdZar(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(`{"values":[
		{"datetime":"2024-01-03","close":"18.40"},
		{"datetime":"2024-01-02","close":"18.20"},
		{"datetime":"2024-01-01","close":"18.00"}]}`))
}

func TestRatesPrintsAndExports(t *testing.T) {
	a := newTestApp(t, usdZar)
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "rates.csv")
	pngPath := filepath.Join(dir, "out", "rates.png")

	var out bytes.Buffer
	err := a.Rates(context.Background(), &out, RatesOptions{
		Bases:   "zar",
		Targets: "USD",
		From:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		To:      time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		CSVPath: csvPath,
		PNGPath: pngPath,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "2024-01-03  ZAR   USD     0.054348")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"date", "base", "target", "rate"}, records[0])
	assert.Equal(t, []string{"2024-01-03", "ZAR", "USD", "0.054348"}, records[1])

	png, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestRatesRejectsEmptyBase(t *testing.T) {
	a := newTestApp(t, usdZar)
	err := a.Rates(context.Background(), &bytes.Buffer{}, RatesOptions{Bases: " ", Targets: "USD"})
	assert.ErrorIs(t, err, service.ErrNoBases)
}

func TestAuditStreamsAndExports(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("testing mode must not call the provider: %s", r.URL.Path)
	})
	dir := t.TempDir()
	input := filepath.Join(dir, "recorded.csv")
	require.NoError(t, os.WriteFile(input, []byte("Trade Date,From,To,FX Rate\n05/01/2024,USD,ZAR,18.5\nnot-a-date,USD,ZAR,18.5\n"), 0o600))
	output := filepath.Join(dir, "audited.csv")

	var out bytes.Buffer
	err := a.Audit(context.Background(), &out, AuditOptions{
		Path:        input,
		DateFormat:  "DD/MM/YYYY",
		TestingMode: true,
		CSVPath:     output,
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[loading] Loading file...")
	assert.Contains(t, text, "[MOCK] USD/ZAR = 18.500000")
	assert.Contains(t, text, "Passed: 1  Exceptions: 0  Errors: 1  Mode: testing")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1,2024-01-05,USD,ZAR,18.5,18.500000,0.00,mock,PASS"))
	assert.Contains(t, lines[2], "DATE_ERROR")
}

func TestAuditSurfacesSchemaFailure(t *testing.T) {
	a := newTestApp(t, usdZar)
	input := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(input, []byte("When,Amount\n2024-01-05,10\n"), 0o600))

	var out bytes.Buffer
	err := a.Audit(context.Background(), &out, AuditOptions{Path: input, TestingMode: true})
	assert.ErrorIs(t, err, audit.ErrSchema)
	assert.Contains(t, out.String(), "[failed]")
}

func TestTemplateHasCanonicalHeaders(t *testing.T) {
	a := newTestApp(t, usdZar)
	path := filepath.Join(t.TempDir(), "template.csv")
	require.NoError(t, a.Template(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Date,Base Currency,Source Currency,User Rate\n", string(data))
}

func TestTargetsAndClearCache(t *testing.T) {
	a := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"symbol":"USD/ZAR"},{"symbol":"EUR/USD"},{"symbol":"GBP/JPY"}]}`))
	})

	var out bytes.Buffer
	require.NoError(t, a.Targets(context.Background(), &out, "usd", ""))
	assert.Equal(t, "2 targets for USD\nEUR, ZAR\n", out.String())
	require.NoError(t, a.ClearCache(context.Background()))
}

func TestDownsampleKeepsEnds(t *testing.T) {
	rows := make([]series.Row, 10)
	for i := range rows {
		rows[i] = series.Row{Date: time.Date(2024, 1, i+1, 0, 0, 0, 0, time.UTC), Rate: decimal.NewFromInt(int64(i + 1))}
	}
	got := downsampleRows(rows, 4)
	require.Len(t, got, 4)
	assert.Equal(t, rows[0], got[0])
	assert.Equal(t, rows[9], got[3])
	assert.Len(t, downsampleRows(rows, 0), 10)
}

func TestGroupByPairOrdersAscending(t *testing.T) {
	d := func(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }
	rows := []series.Row{
		{Base: "USD", Target: "BWP", Date: d(2), Rate: decimal.NewFromInt(13)},
		{Base: "USD", Target: "BWP", Date: d(1), Rate: decimal.NewFromInt(12)},
		{Base: "USD", Target: "ZAR", Date: d(2), Rate: decimal.NewFromInt(18)},
	}
	pairs := groupByPair(rows)
	require.Len(t, pairs, 2)
	assert.Equal(t, "USD/BWP", pairs[0].label)
	assert.Equal(t, d(1), pairs[0].rows[0].Date)
	assert.Equal(t, rates.Code("ZAR"), pairs[1].rows[0].Target)
	assert.Equal(t, d(2), rows[0].Date)
}
