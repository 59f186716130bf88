package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"fxrec/internal/audit"
	"fxrec/internal/cache"
	"fxrec/internal/config"
	"fxrec/internal/quote"
	"fxrec/internal/rates"
	"fxrec/internal/routing"
	"fxrec/internal/series"
)

const eventBuffer = 64

var (
	// ErrMissingCredential is returned when neither the request nor configuration
	// carries a provider key.
	ErrMissingCredential = fmt.Errorf("%w: provider credential is required", config.ErrConfiguration)
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
)

// Provider is the quote source the service drives.
type Provider interface {
	FetchSeries(ctx context.Context, symbol string, start, end time.Time) (rates.Series, error)
	FetchAvailableTargets(ctx context.Context, base rates.Code) ([]rates.Code, error)
	audit.HistoricalRater
}

var _ Provider = (*quote.Client)(nil)

// ProviderFactory builds a provider bound to one credential.
type ProviderFactory func(credential string) Provider

// Service resolves rate tables and runs audits over one shared cache.
type Service struct {
	cfg      *config.Config
	cache    cache.Cache
	router   *routing.Router
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time

	newProvider ProviderFactory
	mu          sync.Mutex
	providers   map[string]Provider
	group       singleflight.Group

	auditOpts []audit.Option
}

// Option adjusts a Service.
type Option func(*Service)

// WithProviderFactory replaces the Twelve Data client, mainly for tests.
func WithProviderFactory(f ProviderFactory) Option {
	return func(s *Service) {
		s.newProvider = f
	}
}

// WithClock replaces the clock behind "yesterday" and "today" decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.auditOpts = append(s.auditOpts, audit.WithClock(now))
	}
}

// WithAuditOptions forwards options to every auditor the service creates.
func WithAuditOptions(opts ...audit.Option) Option {
	return func(s *Service) {
		s.auditOpts = append(s.auditOpts, opts...)
	}
}

// New constructs the service. The cache is owned by the caller.
func New(cfg *config.Config, c cache.Cache, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrConfiguration)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: nil cache", config.ErrConfiguration)
	}
	standard, err := cfg.StandardCurrencies()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	anchor, err := rates.ParseCode(cfg.Routing.Anchor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	router, err := routing.NewRouter(standard, anchor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}

	s := &Service{
		cfg:       cfg,
		cache:     c,
		router:    router,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With().Str("component", "service").Logger(),
		now:       time.Now,
		providers: make(map[string]Provider),
	}
	s.newProvider = func(credential string) Provider {
		return quote.NewClient(cfg.QuoteOptions(credential), logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RatesRequest describes one extraction.
type RatesRequest struct {
	Credential string       `validate:"required"`
	Bases      []rates.Code `validate:"required,min=1,dive,len=3"`
	Targets    TargetSpec   `validate:"-"`
	Start      time.Time    `validate:"required"`
	End        time.Time    `validate:"required,gtefield=Start"`
	Invert     bool
}

// ResolveRates fetches, assembles and caches the requested table. Pair-level failures
// become warnings; a rejected credential aborts the whole request. Inversion is applied
// to the returned rows only, so inverted and plain requests share one cache entry.
func (s *Service) ResolveRates(ctx context.Context, req RatesRequest) (series.Result, error) {
	req.Credential = s.credential(req.Credential)
	if req.Credential == "" {
		return series.Result{}, ErrMissingCredential
	}
	if err := normalizeRequest(&req); err != nil {
		return series.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.validate.Struct(req); err != nil {
		return series.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	dr, err := rates.NewDateRange(req.Start, req.End)
	if err != nil {
		return series.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	bases := make([]string, len(req.Bases))
	for i, b := range req.Bases {
		bases[i] = string(b)
	}
	key := cache.RatesKey(req.Credential, bases, req.Targets.Strings(), dr.Start, dr.End)

	v, err, shared := s.group.Do(key, func() (any, error) {
		return s.extract(ctx, req, dr, key)
	})
	if err != nil {
		return series.Result{}, err
	}
	if shared {
		s.logger.Debug().Str("key", key).Msg("joined in-flight extraction")
	}

	res := v.(series.Result)
	if req.Invert {
		res.Rows = series.InvertRows(res.Rows, s.cfg.Series.Precision)
	}
	return res, nil
}

func (s *Service) extract(ctx context.Context, req RatesRequest, dr rates.DateRange, key string) (series.Result, error) {
	var cached series.Result
	if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if ok {
		s.logger.Debug().Str("key", key).Int("rows", len(cached.Rows)).Msg("extraction served from cache")
		return cached, nil
	}

	provider := s.provider(req.Credential)
	var warnings []string

	var routes []routing.Decision
	symbolSet := make(map[string]struct{})
	var symbols []string
	for _, base := range req.Bases {
		targets := req.Targets.Codes
		if req.Targets.All {
			var warn string
			targets, warn = s.catalogue(ctx, req.Credential, base)
			if warn != "" {
				warnings = append(warnings, warn)
			}
		}
		decisions, syms := s.router.Plan([]rates.Code{base}, targets)
		routes = append(routes, decisions...)
		for _, sym := range syms {
			if _, ok := symbolSet[sym]; ok {
				continue
			}
			symbolSet[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}

	// Serial on purpose: the client's window is the only quota accounting.
	responses := make(map[string]rates.Series, len(symbols))
	failed := 0
	for _, sym := range symbols {
		ser, err := provider.FetchSeries(ctx, sym, dr.Start, dr.End)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return series.Result{}, ctxErr
			}
			if credentialRejected(err) {
				return series.Result{}, fmt.Errorf("%w: provider rejected credential: %v", config.ErrConfiguration, err)
			}
			failed++
			warnings = append(warnings, fmt.Sprintf("fetch %s: %v", sym, err))
			s.logger.Warn().Err(err).Str("symbol", sym).Msg("series fetch failed")
			continue
		}
		responses[sym] = ser
	}

	res := series.Assemble(responses, routes, &dr, series.Options{
		FillLimit: s.cfg.Series.FillLimit,
		Precision: s.cfg.Series.Precision,
		Now:       s.now(),
	})
	res.Warnings = append(warnings, res.Warnings...)

	s.logger.Info().
		Int("symbols", len(symbols)).
		Int("failed", failed).
		Int("rows", len(res.Rows)).
		Msg("extraction assembled")

	if failed == 0 {
		if err := s.cache.Set(ctx, key, res, s.cfg.Cache.RateTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return res, nil
}

// catalogue resolves the ALL preset for base, falling back to DEFAULT with a warning.
func (s *Service) catalogue(ctx context.Context, credential string, base rates.Code) ([]rates.Code, string) {
	targets, err := s.availableTargets(ctx, credential, base)
	if err == nil && len(targets) > 0 {
		return targets, ""
	}
	fallback := without(DefaultBasket, []rates.Code{base})
	if err != nil {
		s.logger.Warn().Err(err).Str("base", string(base)).Msg("catalogue lookup failed, using DEFAULT basket")
		return fallback, fmt.Sprintf("could not list targets for %s (%v); using DEFAULT basket", base, err)
	}
	return fallback, fmt.Sprintf("no targets listed for %s; using DEFAULT basket", base)
}

// normalizeRequest upper-cases and dedupes every code so callers may pass raw input.
func normalizeRequest(req *RatesRequest) error {
	bases, err := normalizeCodes(req.Bases)
	if err != nil {
		return err
	}
	req.Bases = bases
	if req.Targets.All {
		return nil
	}
	targets, err := normalizeCodes(req.Targets.Codes)
	if err != nil {
		return err
	}
	req.Targets.Codes = targets
	return nil
}

func normalizeCodes(codes []rates.Code) ([]rates.Code, error) {
	raw := make([]string, len(codes))
	for i, c := range codes {
		raw[i] = string(c)
	}
	return rates.ParseCodes(raw)
}

// AvailableTargets lists the currencies the provider quotes against base.
func (s *Service) AvailableTargets(ctx context.Context, credential string, base rates.Code) ([]rates.Code, error) {
	credential = s.credential(credential)
	if credential == "" {
		return nil, ErrMissingCredential
	}
	b, err := rates.ParseCode(string(base))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.availableTargets(ctx, credential, b)
}

func (s *Service) availableTargets(ctx context.Context, credential string, base rates.Code) ([]rates.Code, error) {
	key := cache.CurrenciesKey(credential, string(base))
	v, err, _ := s.group.Do(key, func() (any, error) {
		var cached []rates.Code
		if ok, err := s.cache.Get(ctx, key, &cached); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		} else if ok {
			return cached, nil
		}

		targets, err := s.provider(credential).FetchAvailableTargets(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("fetch available targets for %s: %w", base, err)
		}
		if err := s.cache.Set(ctx, key, targets, s.cfg.Cache.MetadataTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
		return targets, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]rates.Code), nil
}

// AuditRequest describes one audit run. A nil ThresholdPct or blank DateFormat selects
// the configured default.
type AuditRequest struct {
	Source       audit.Source `validate:"-"`
	DateFormat   string
	ThresholdPct *float64 `validate:"omitempty,gte=0"`
	Credential   string   `validate:"required_unless=TestingMode true"`
	TestingMode  bool
	InvertRates  bool
}

// AuditOutcome is the single terminal value of an asynchronous audit.
type AuditOutcome struct {
	Result *audit.Result
	Err    error
}

// RunAudit runs an audit on the calling goroutine. progress, when non-nil, receives every
// event including exactly one terminal event.
func (s *Service) RunAudit(ctx context.Context, req AuditRequest, progress audit.ProgressFunc) (*audit.Result, error) {
	req.Credential = s.credential(req.Credential)
	if err := s.checkAudit(req); err != nil {
		if progress != nil {
			progress(audit.Event{Phase: audit.PhaseFailed, Message: err.Error(), Err: err})
		}
		return nil, err
	}

	opts := s.cfg.AuditOptions()
	if req.DateFormat != "" {
		opts.DateFormat = req.DateFormat
	}
	if req.ThresholdPct != nil {
		opts.Threshold = *req.ThresholdPct
	}
	opts.TestingMode = req.TestingMode
	opts.InvertRates = req.InvertRates

	var rater audit.HistoricalRater
	if !req.TestingMode {
		rater = s.provider(req.Credential)
	}
	auditor := audit.NewAuditor(rater, s.cache, s.logger, s.auditOpts...)
	return auditor.Run(ctx, req.Source, opts, progress)
}

func (s *Service) checkAudit(req AuditRequest) error {
	if !req.TestingMode && req.Credential == "" {
		return ErrMissingCredential
	}
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// StartAudit runs an audit on its own goroutine. Events arrive in order on the first
// channel; the outcome channel yields exactly one value. Both channels are closed when
// the run ends. Progress is queued without bound, so the run and its outcome never wait
// on an events reader; undelivered events are released when ctx is done.
func (s *Service) StartAudit(ctx context.Context, req AuditRequest) (<-chan audit.Event, <-chan AuditOutcome) {
	events := make(chan audit.Event, eventBuffer)
	outcome := make(chan AuditOutcome, 1)
	queue := newEventQueue()

	go queue.forward(ctx, events)
	go func() {
		defer close(outcome)
		res, err := s.RunAudit(ctx, req, queue.push)
		queue.close()
		outcome <- AuditOutcome{Result: res, Err: err}
	}()

	return events, outcome
}

// eventQueue decouples the audit run from the events reader.
type eventQueue struct {
	mu     sync.Mutex
	items  []audit.Event
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev audit.Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// forward delivers queued events in order and closes out once the queue is closed
// and drained, or when ctx is done.
func (q *eventQueue) forward(ctx context.Context, out chan<- audit.Event) {
	defer close(out)
	for {
		q.mu.Lock()
		items, closed := q.items, q.closed
		q.items = nil
		q.mu.Unlock()

		for _, ev := range items {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if closed {
			return
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return
		}
	}
}

// ClearCache drops every entry the service may have written.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear %s cache: %w", s.cache.Name(), err)
	}
	s.logger.Info().Str("backend", s.cache.Name()).Msg("cache cleared")
	return nil
}

func (s *Service) credential(c string) string {
	if c = strings.TrimSpace(c); c != "" {
		return c
	}
	return strings.TrimSpace(s.cfg.Provider.APIKey)
}

// provider returns the client for credential, creating it once so each key keeps one
// quota window.
func (s *Service) provider(credential string) Provider {
	fp := cache.Fingerprint(credential)
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[fp]; ok {
		return p
	}
	p := s.newProvider(credential)
	s.providers[fp] = p
	return p
}

func credentialRejected(err error) bool {
	var qe *quote.Error
	if !errors.As(err, &qe) || qe.Reason != quote.ReasonProvider {
		return false
	}
	return qe.Status == http.StatusUnauthorized || qe.Status == http.StatusForbidden
}
