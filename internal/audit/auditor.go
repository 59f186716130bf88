package audit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fxrec/internal/cache"
	"fxrec/internal/quote"
	"fxrec/internal/rates"
)

// Status is the write-once outcome of one audit row.
type Status string

const (
	StatusPass      Status = "PASS"
	StatusException Status = "EXCEPTION"
	StatusAPIError  Status = "API_ERROR"
	StatusDateError Status = "DATE_ERROR"
)

// RateSource records how a resolved rate was obtained.
type RateSource string

const (
	SourceCache    RateSource = "cache"
	SourceMock     RateSource = "mock"
	SourceLive     RateSource = "live"
	SourceLookback RateSource = "lookback"
)

const (
	ratePrecision     int32 = 6
	variancePrecision int32 = 2
)

// MaxMockVariancePct keeps synthetic rates strictly positive.
const MaxMockVariancePct = 99.0

var hundred = decimal.NewFromInt(100)

// HistoricalRater resolves the provider close for one pair on one day.
//
//go:generate mockgen -package=audit_test -destination=mock_rater_test.go -source=auditor.go HistoricalRater
type HistoricalRater interface {
	FetchHistorical(ctx context.Context, base, quote rates.Code, date time.Time) (decimal.Decimal, bool, error)
}

// Row is one input row and its reconciliation outcome. ResolvedRate and VariancePct are
// set only when a reference rate was found.
type Row struct {
	Number       int              `json:"row"`
	Values       []string         `json:"values"`
	Date         time.Time        `json:"date"`
	Base         rates.Code       `json:"base"`
	Source       rates.Code       `json:"source"`
	UserRate     decimal.Decimal  `json:"user_rate"`
	ResolvedRate *decimal.Decimal `json:"resolved_rate,omitempty"`
	VariancePct  *decimal.Decimal `json:"variance_pct,omitempty"`
	RateSource   RateSource       `json:"rate_source,omitempty"`
	Status       Status           `json:"status"`
	Message      string           `json:"message,omitempty"`
}

// Summary is derived from a full row set by Summarize.
type Summary struct {
	TotalRows   int  `json:"total_rows"`
	Passed      int  `json:"passed"`
	Exceptions  int  `json:"exceptions"`
	APIErrors   int  `json:"api_errors"`
	TestingMode bool `json:"testing_mode"`
}

// Summarize counts rows by status. Date errors count as API errors.
func Summarize(rows []Row, testingMode bool) Summary {
	s := Summary{TotalRows: len(rows), TestingMode: testingMode}
	for _, r := range rows {
		switch r.Status {
		case StatusPass:
			s.Passed++
		case StatusException:
			s.Exceptions++
		case StatusAPIError, StatusDateError:
			s.APIErrors++
		}
	}
	return s
}

// Result is the terminal payload of a successful run.
type Result struct {
	RunID   string   `json:"run_id"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	Summary Summary  `json:"summary"`
}

// Options configure a single run.
type Options struct {
	Threshold       float64
	DateFormat      string
	TestingMode     bool
	InvertRates     bool
	LookbackDays    int
	BatchSize       int
	MockVariancePct float64
	CacheTTL        time.Duration
}

func (o Options) withDefaults() Options {
	if o.Threshold < 0 {
		o.Threshold = 0
	}
	if o.DateFormat == "" {
		o.DateFormat = DefaultDateFormat
	}
	if o.LookbackDays < 0 {
		o.LookbackDays = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.MockVariancePct < 0 {
		o.MockVariancePct = 0
	}
	if o.MockVariancePct > MaxMockVariancePct {
		o.MockVariancePct = MaxMockVariancePct
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	return o
}

// DefaultOptions mirrors the documented configuration defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:       5.0,
		DateFormat:      DefaultDateFormat,
		LookbackDays:    3,
		BatchSize:       5,
		MockVariancePct: 5.0,
		CacheTTL:        24 * time.Hour,
	}
}

// Auditor reconciles user-recorded rates against reference rates, one row at a time.
type Auditor struct {
	rater   HistoricalRater
	cache   cache.Cache
	logger  zerolog.Logger
	now     func() time.Time
	uniform func() float64
}

// Option adjusts an Auditor.
type Option func(*Auditor)

// WithClock replaces the clock used to decide whether a row date is today.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		a.now = now
	}
}

// WithRandom replaces the uniform [0,1) source behind synthetic rates.
func WithRandom(uniform func() float64) Option {
	return func(a *Auditor) {
		a.uniform = uniform
	}
}

// NewAuditor wires an auditor. rater may be nil when every run uses testing mode.
func NewAuditor(rater HistoricalRater, c cache.Cache, logger zerolog.Logger, opts ...Option) *Auditor {
	a := &Auditor{
		rater:   rater,
		cache:   c,
		logger:  logger.With().Str("component", "auditor").Logger(),
		now:     time.Now,
		uniform: rand.Float64,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run drives one audit: Loading, then schema validation, then per-row processing. The
// returned Result (or error) is the single terminal outcome; progress, when non-nil,
// additionally receives every intermediate event and one terminal event.
func (a *Auditor) Run(ctx context.Context, src Source, opts Options, progress ProgressFunc) (*Result, error) {
	opts = opts.withDefaults()
	r := &run{
		auditor:  a,
		id:       uuid.NewString(),
		opts:     opts,
		progress: progress,
	}
	r.logger = a.logger.With().Str("run_id", r.id).Logger()
	return r.execute(ctx, src)
}

// run holds the state of one execution.
type run struct {
	auditor  *Auditor
	id       string
	opts     Options
	progress ProgressFunc
	logger   zerolog.Logger
	total    int
}

func (r *run) emit(phase Phase, current int, msg string) {
	if r.progress == nil {
		return
	}
	r.progress(Event{RunID: r.id, Phase: phase, Current: current, Total: r.total, Message: msg})
}

func (r *run) fail(err error, msg string) (*Result, error) {
	r.logger.Error().Err(err).Msg("audit run failed")
	if r.progress != nil {
		r.progress(Event{RunID: r.id, Phase: PhaseFailed, Total: r.total, Message: msg, Err: err})
	}
	return nil, err
}

func (r *run) execute(ctx context.Context, src Source) (*Result, error) {
	a := r.auditor
	r.emit(PhaseLoading, 0, "Loading file...")
	table, err := Load(src)
	if err != nil {
		return r.fail(err, fmt.Sprintf("Error loading file: %v", err))
	}

	r.emit(PhaseValidating, 0, "Validating columns...")
	mapping, err := MapColumns(table.Headers)
	if err != nil {
		return r.fail(err, err.Error())
	}
	r.emit(PhaseValidating, 0, "Schema validated. Columns: "+mapping.Describe(table.Headers))

	if !r.opts.TestingMode && a.rater == nil {
		err := errors.New("audit: live mode requires a rate source")
		return r.fail(err, err.Error())
	}

	r.total = len(table.Rows)
	r.emit(PhaseProcessing, 0, fmt.Sprintf("Loaded %d rows. Starting audit...", r.total))
	r.logger.Info().Str("file", src.Name()).Int("rows", r.total).Bool("testing_mode", r.opts.TestingMode).Msg("audit started")

	rows := make([]Row, 0, r.total)
	for i, values := range table.Rows {
		if err := ctx.Err(); err != nil {
			return r.fail(err, "Audit cancelled")
		}
		rows = append(rows, r.processRow(ctx, i+1, values, mapping))
	}

	res := &Result{
		RunID:   r.id,
		Columns: table.Headers,
		Rows:    rows,
		Summary: Summarize(rows, r.opts.TestingMode),
	}
	msg := fmt.Sprintf("Audit complete. Passed: %d, Exceptions: %d, Errors: %d",
		res.Summary.Passed, res.Summary.Exceptions, res.Summary.APIErrors)
	r.logger.Info().
		Int("passed", res.Summary.Passed).
		Int("exceptions", res.Summary.Exceptions).
		Int("api_errors", res.Summary.APIErrors).
		Msg("audit complete")
	if r.progress != nil {
		r.progress(Event{RunID: r.id, Phase: PhaseComplete, Current: r.total, Total: r.total, Message: msg, Result: res})
	}
	return res, nil
}

// processRow resolves one row; every failure is recorded on the row itself.
func (r *run) processRow(ctx context.Context, n int, values []string, m Mapping) Row {
	row := Row{
		Number: n,
		Values: values,
		Base:   rates.Normalize(values[m[FieldBase]]),
		Source: rates.Normalize(values[m[FieldSource]]),
	}

	date, err := ParseDate(values[m[FieldDate]], r.opts.DateFormat)
	if err != nil {
		row.Status = StatusDateError
		row.Message = "Invalid date format"
		r.emit(PhaseProcessing, n, fmt.Sprintf("Row %d: Invalid date format", n))
		return row
	}
	row.Date = date

	base, errB := rates.ParseCode(values[m[FieldBase]])
	source, errS := rates.ParseCode(values[m[FieldSource]])
	if errB != nil || errS != nil {
		return r.apiError(row, fmt.Sprintf("invalid currency pair %q/%q", values[m[FieldBase]], values[m[FieldSource]]))
	}
	row.Base, row.Source = base, source

	userRate, err := parseRate(values[m[FieldUserRate]])
	if err != nil {
		return r.apiError(row, fmt.Sprintf("invalid user rate %q", values[m[FieldUserRate]]))
	}
	row.UserRate = userRate

	resolved, src, ok := r.resolve(ctx, n, row)
	if !ok {
		return row.withStatus(StatusAPIError, "no reference rate")
	}
	row.RateSource = src

	if r.opts.InvertRates {
		resolved = decimal.NewFromInt(1).Div(resolved)
	}
	variance := userRate.Sub(resolved).Abs().Div(resolved).Mul(hundred)
	rounded := resolved.Round(ratePrecision)
	shown := variance.Round(variancePrecision)
	row.ResolvedRate = &rounded
	row.VariancePct = &shown

	if variance.LessThanOrEqual(decimal.NewFromFloat(r.opts.Threshold)) {
		row.Status = StatusPass
	} else {
		row.Status = StatusException
	}
	return row
}

func (r *run) apiError(row Row, msg string) Row {
	r.emit(PhaseProcessing, row.Number, fmt.Sprintf("Row %d: %s", row.Number, msg))
	return row.withStatus(StatusAPIError, msg)
}

func (row Row) withStatus(s Status, msg string) Row {
	row.Status = s
	row.Message = msg
	return row
}

// resolve finds the reference rate for the row's (date, base, source): cache, then a
// synthetic rate in testing mode, otherwise a live fetch with lookback. Any resolved rate
// is cached before returning.
func (r *run) resolve(ctx context.Context, n int, row Row) (decimal.Decimal, RateSource, bool) {
	a := r.auditor
	pair := rates.Pair{Base: row.Base, Target: row.Source}
	key := cache.AuditRateKey(row.Date, string(row.Base), string(row.Source))

	if a.cache != nil {
		var cached decimal.Decimal
		found, err := a.cache.Get(ctx, key, &cached)
		if err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("audit cache read failed")
		}
		if found && cached.IsPositive() {
			r.emit(PhaseProcessing, n, fmt.Sprintf("Row %d: [CACHE] %s = %s", n, pair, cached.StringFixed(ratePrecision)))
			return cached, SourceCache, true
		}
	}

	var (
		rate decimal.Decimal
		src  RateSource
	)
	if r.opts.TestingMode {
		rate = a.mockRate(row.UserRate, r.opts.MockVariancePct)
		src = SourceMock
		r.emit(PhaseProcessing, n, fmt.Sprintf("Row %d: [MOCK] %s = %s", n, pair, rate.StringFixed(ratePrecision)))
	} else {
		if n > 1 && (n-1)%r.opts.BatchSize == 0 {
			r.emit(PhaseProcessing, n, fmt.Sprintf("Processing batch %d...", (n-1)/r.opts.BatchSize))
		}
		var (
			used time.Time
			err  error
			ok   bool
		)
		rate, used, ok, err = r.fetchWithLookback(ctx, n, pair, row.Date)
		if !ok {
			msg := fmt.Sprintf("Row %d: API error for %s", n, pair)
			if err != nil {
				msg += ": " + describe(err)
			}
			r.emit(PhaseProcessing, n, msg)
			return decimal.Decimal{}, "", false
		}
		src = SourceLive
		msg := fmt.Sprintf("Row %d: Fetched %s = %s", n, pair, rate.StringFixed(ratePrecision))
		if !used.Equal(row.Date) {
			src = SourceLookback
			msg += " (from " + used.Format(rates.DateLayout) + ")"
		}
		r.emit(PhaseProcessing, n, msg)
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, key, rate, r.opts.CacheTTL); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("audit cache write failed")
		}
	}
	return rate, src, true
}

// fetchWithLookback tries date, then up to LookbackDays earlier days. There is no
// lookback for today, and none after a quota or transport failure.
func (r *run) fetchWithLookback(ctx context.Context, n int, pair rates.Pair, date time.Time) (decimal.Decimal, time.Time, bool, error) {
	a := r.auditor
	rate, found, err := a.rater.FetchHistorical(ctx, pair.Base, pair.Target, date)
	if found {
		return rate, date, true, nil
	}
	if err != nil {
		r.logger.Warn().Err(err).Str("pair", pair.String()).Time("date", date).Msg("historical fetch failed")
		if quote.IsTransient(err) || ctx.Err() != nil {
			return decimal.Decimal{}, time.Time{}, false, err
		}
	}

	if date.Equal(rates.Day(a.now())) {
		r.emit(PhaseProcessing, n, fmt.Sprintf("Row %d: %s has no rate for today; lookback skipped", n, pair))
		return decimal.Decimal{}, time.Time{}, false, err
	}

	lastErr := err
	for i := 1; i <= r.opts.LookbackDays; i++ {
		prev := date.AddDate(0, 0, -i)
		r.emit(PhaseProcessing, n, fmt.Sprintf("Row %d: looking back %d day(s) to %s for %s", n, i, prev.Format(rates.DateLayout), pair))
		rate, found, err := a.rater.FetchHistorical(ctx, pair.Base, pair.Target, prev)
		if found {
			return rate, prev, true, nil
		}
		if err != nil {
			lastErr = err
			if quote.IsTransient(err) || ctx.Err() != nil {
				break
			}
		}
	}
	return decimal.Decimal{}, time.Time{}, false, lastErr
}

// mockRate perturbs userRate by a uniform percentage in [-pct, +pct].
func (a *Auditor) mockRate(userRate decimal.Decimal, pct float64) decimal.Decimal {
	shift := (a.uniform()*2 - 1) * pct / 100
	rate := userRate.Mul(decimal.NewFromFloat(1 + shift)).Round(ratePrecision)
	if !rate.IsPositive() {
		return userRate
	}
	return rate
}

func parseRate(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !v.IsPositive() {
		return decimal.Decimal{}, rates.ErrInvalidRate
	}
	return v, nil
}

func describe(err error) string {
	switch quote.ReasonOf(err) {
	case quote.ReasonQuota:
		return "request quota exhausted"
	case quote.ReasonNetwork:
		return "provider unreachable"
	case quote.ReasonProvider:
		return "provider rejected the request"
	case quote.ReasonParse:
		return "unreadable provider response"
	}
	return err.Error()
}
