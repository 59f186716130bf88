package series

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxrec/internal/rates"
	"fxrec/internal/routing"
)

func d(s string) time.Time {
	t, err := rates.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustSeries(t *testing.T, pairs ...string) rates.Series {
	t.Helper()
	require.Zero(t, len(pairs)%2)
	obs := make([]rates.Observation, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		obs = append(obs, rates.Observation{Date: d(pairs[i]), Rate: dec(pairs[i+1])})
	}
	s, err := rates.NewSeries(obs)
	require.NoError(t, err)
	return s
}

func route(t *testing.T, base, target rates.Code) routing.Decision {
	t.Helper()
	r, err := routing.NewRouter(nil, "")
	require.NoError(t, err)
	decision, err := r.Route(base, target)
	require.NoError(t, err)
	return decision
}

func TestForwardFillStopsAtLimit(t *testing.T) {
	s := mustSeries(t, "2024-01-01", "1.5")
	filled := ForwardFill(s, d("2024-01-01"), d("2024-01-10"), d("2024-01-10"), 3)

	require.Len(t, filled, 4)
	for i, o := range filled {
		assert.True(t, o.Date.Equal(d("2024-01-01").AddDate(0, 0, i)))
		assert.True(t, o.Rate.Equal(dec("1.5")))
	}
}

func TestForwardFillGapShorterThanLimit(t *testing.T) {
	// Friday then Monday: the weekend is filled.
	s := mustSeries(t, "2024-01-05", "18.4", "2024-01-08", "18.6")
	filled := ForwardFill(s, d("2024-01-05"), d("2024-01-08"), d("2024-01-08"), 3)

	require.Len(t, filled, 4)
	assert.True(t, filled[1].Rate.Equal(dec("18.4")))
	assert.True(t, filled[2].Rate.Equal(dec("18.4")))
	assert.True(t, filled[3].Rate.Equal(dec("18.6")))
}

func TestForwardFillLeavesLeadingDaysAbsent(t *testing.T) {
	s := mustSeries(t, "2023-12-29", "1.0", "2024-01-03", "1.1")
	filled := ForwardFill(s, d("2024-01-01"), d("2024-01-04"), d("2024-01-04"), 3)

	require.Len(t, filled, 2)
	assert.True(t, filled[0].Date.Equal(d("2024-01-03")))
}

func TestForwardFillNeverFillsPastCap(t *testing.T) {
	s := mustSeries(t, "2024-01-01", "1.0", "2024-01-04", "1.3")
	// Cap at 01-02: 01-03 must not be filled, but the real 01-04 observation stays.
	filled := ForwardFill(s, d("2024-01-01"), d("2024-01-04"), d("2024-01-02"), 3)

	require.Len(t, filled, 3)
	assert.True(t, filled[1].Date.Equal(d("2024-01-02")))
	assert.True(t, filled[2].Date.Equal(d("2024-01-04")))
}

func TestTriangulationMatchesCrossFormula(t *testing.T) {
	responses := map[string]rates.Series{
		"USD/ZAR": mustSeries(t, "2024-01-02", "18.0"),
		"USD/BWP": mustSeries(t, "2024-01-02", "13.0"),
	}
	res := Assemble(responses, []routing.Decision{route(t, "ZAR", "BWP")}, nil, Options{})

	require.Empty(t, res.Warnings)
	require.Len(t, res.Rows, 1)
	want := dec("1").Div(dec("18.0")).Mul(dec("13.0")).Round(6)
	assert.True(t, res.Rows[0].Rate.Equal(want), "got %s want %s", res.Rows[0].Rate, want)
	assert.Equal(t, "0.722222", res.Rows[0].Rate.StringFixed(6))
}

func TestTriangulationInnerJoinsOnDate(t *testing.T) {
	a := mustSeries(t, "2024-01-01", "2", "2024-01-02", "4")
	b := mustSeries(t, "2024-01-02", "8", "2024-01-03", "9")

	out := Triangulate(a, b)
	require.Len(t, out, 1)
	assert.True(t, out[0].Rate.Equal(dec("2")))
}

func TestAssembleDirectAndInverted(t *testing.T) {
	responses := map[string]rates.Series{
		"EUR/USD": mustSeries(t, "2024-01-01", "1.25", "2024-01-02", "1.0"),
	}
	routes := []routing.Decision{route(t, "EUR", "USD"), route(t, "USD", "EUR")}
	res := Assemble(responses, routes, nil, Options{})

	require.Len(t, res.Rows, 4)
	// EUR sorts before USD; dates newest first.
	assert.Equal(t, rates.Code("EUR"), res.Rows[0].Base)
	assert.True(t, res.Rows[0].Date.Equal(d("2024-01-02")))
	assert.Equal(t, rates.Code("USD"), res.Rows[2].Base)
	assert.True(t, res.Rows[3].Rate.Equal(dec("0.8")))
}

func TestAssembleOmitsMissingPairsWithWarning(t *testing.T) {
	responses := map[string]rates.Series{
		"USD/ZAR": mustSeries(t, "2024-01-02", "18.0"),
	}
	routes := []routing.Decision{route(t, "ZAR", "BWP"), route(t, "EUR", "GBP"), route(t, "USD", "ZAR")}
	res := Assemble(responses, routes, nil, Options{})

	assert.Len(t, res.Rows, 1)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "USD/BWP")
	assert.Contains(t, res.Warnings[1], "EUR/GBP")
}

func TestAssembleFillsWithinRangeUpToYesterday(t *testing.T) {
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	responses := map[string]rates.Series{
		"USD/ZAR": mustSeries(t, "2024-01-08", "18.0", "2024-01-10", "18.3"),
	}
	dr, err := rates.NewDateRange(d("2024-01-07"), d("2024-01-10"))
	require.NoError(t, err)

	res := Assemble(responses, []routing.Decision{route(t, "USD", "ZAR")}, &dr, Options{Now: now})

	// 01-07 has no prior observation, 01-09 is filled, today's real value is kept.
	require.Len(t, res.Rows, 3)
	assert.True(t, res.Rows[0].Date.Equal(d("2024-01-10")))
	assert.True(t, res.Rows[1].Date.Equal(d("2024-01-09")))
	assert.True(t, res.Rows[1].Rate.Equal(dec("18")))
}

func TestInvertRowsSwapsLabels(t *testing.T) {
	rows := []Row{{Base: "USD", Target: "ZAR", Date: d("2024-01-01"), Rate: dec("16")}}
	out := InvertRows(rows, 6)

	require.Len(t, out, 1)
	assert.Equal(t, rates.Code("ZAR"), out[0].Base)
	assert.Equal(t, rates.Code("USD"), out[0].Target)
	assert.Equal(t, "0.062500", out[0].Rate.StringFixed(6))
}
