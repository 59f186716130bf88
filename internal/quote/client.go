package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fxrec/internal/rates"
)

const (
	defaultBaseURL = "https://api.twelvedata.com"

	timeSeriesPath   = "/time_series"
	exchangeRatePath = "/exchange_rate"
	forexPairsPath   = "/forex_pairs"

	redactedKey = "[REDACTED]"
)

// Options parameterise the Twelve Data client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	QuotaRequests int
	QuotaWindow   time.Duration
	QuotaMargin   time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	UserAgent     string
}

// Client fetches FX rates from Twelve Data, pacing itself to the published quota.
// A Client is safe for concurrent use, but its quota window is private to the instance.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	window  *Window
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewClient constructs a client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.QuotaRequests <= 0 {
		opts.QuotaRequests = 8
	}
	if opts.QuotaWindow <= 0 {
		opts.QuotaWindow = time.Minute
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Minute
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		window:  NewWindow(opts.QuotaRequests, opts.QuotaWindow, opts.QuotaMargin),
		sleep:   sleepContext,
	}
}

// FetchSeries retrieves the daily close series for symbol over [start, end].
func (c *Client) FetchSeries(ctx context.Context, symbol string, start, end time.Time) (rates.Series, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", "1day")
	params.Set("start_date", start.Format(rates.DateLayout))
	params.Set("end_date", end.Format(rates.DateLayout))

	body, err := c.do(ctx, timeSeriesPath, params, true)
	if err != nil {
		return nil, err
	}
	return decodeSeries(body)
}

// FetchPoint retrieves the latest rate for symbol.
func (c *Client) FetchPoint(ctx context.Context, symbol string) (rates.Observation, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, exchangeRatePath, params, true)
	if err != nil {
		return rates.Observation{}, err
	}
	s, err := decodeSeries(body)
	if err != nil {
		return rates.Observation{}, err
	}
	if len(s) == 0 {
		return rates.Observation{}, parseError("point response for %s was empty", symbol)
	}
	return s[len(s)-1], nil
}

// FetchHistorical returns the close for base/quote on exactly date. found is false when
// the provider has no observation for that day.
func (c *Client) FetchHistorical(ctx context.Context, base, quote rates.Code, date time.Time) (decimal.Decimal, bool, error) {
	day := rates.Day(date)
	params := url.Values{}
	params.Set("symbol", rates.Pair{Base: base, Target: quote}.Symbol())
	params.Set("interval", "1day")
	params.Set("start_date", day.Format(rates.DateLayout))
	params.Set("end_date", day.AddDate(0, 0, 1).Format(rates.DateLayout))
	params.Set("outputsize", "1")

	body, err := c.do(ctx, timeSeriesPath, params, true)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	s, err := decodeSeries(body)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	for _, o := range s {
		if o.Date.Equal(day) {
			return o.Rate, true, nil
		}
	}
	return decimal.Decimal{}, false, nil
}

// FetchAvailableTargets lists currencies quoted against base. This metadata call does
// not count against the quota and bypasses the window.
func (c *Client) FetchAvailableTargets(ctx context.Context, base rates.Code) ([]rates.Code, error) {
	body, err := c.do(ctx, forexPairsPath, url.Values{}, false)
	if err != nil {
		return nil, err
	}
	return decodeTargets(body, base)
}

func (c *Client) do(ctx context.Context, path string, params url.Values, throttled bool) ([]byte, error) {
	params.Set("apikey", c.opts.APIKey)
	endpoint := c.baseURL + path + "?" + params.Encode()
	symbol := params.Get("symbol")

	for attempt := 0; ; attempt++ {
		if throttled {
			waited, err := c.window.Wait(ctx)
			if err != nil {
				return nil, err
			}
			if waited > 0 {
				c.logger.Warn().Dur("waited", waited).Str("symbol", symbol).Msg("request quota reached, paused")
			}
		}

		status, payload, err := c.get(ctx, endpoint)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &Error{Reason: ReasonNetwork, Msg: c.redact(err.Error())}
		}

		env := parseEnvelope(payload)
		if status == http.StatusTooManyRequests || env.Code == http.StatusTooManyRequests {
			if attempt >= c.opts.MaxRetries {
				c.logger.Error().Int("attempts", attempt+1).Str("symbol", symbol).Msg("max retries reached for quota errors")
				return nil, &Error{Reason: ReasonQuota, Status: http.StatusTooManyRequests, Msg: fmt.Sprintf("still throttled after %d attempts", attempt+1)}
			}
			backoff := c.opts.RetryBackoff * time.Duration(attempt+1)
			c.logger.Warn().Dur("backoff", backoff).Int("attempt", attempt+1).Str("symbol", symbol).Msg("provider signalled too many requests, retrying")
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		if status != http.StatusOK {
			return nil, c.providerError(status, env, payload)
		}
		if strings.EqualFold(env.Status, "error") {
			return nil, c.providerError(env.Code, env, payload)
		}
		return payload, nil
	}
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fxrec/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}

func parseEnvelope(payload []byte) envelope {
	var env envelope
	_ = json.Unmarshal(payload, &env)
	return env
}

func (c *Client) providerError(status int, env envelope, payload []byte) error {
	msg := env.Message
	if msg == "" && len(payload) > 0 {
		msg = strings.TrimSpace(string(payload))
	}
	if msg == "" {
		msg = "no message"
	}
	c.logger.Error().Int("status", status).Msg("provider error: " + c.redact(msg))
	return &Error{Reason: ReasonProvider, Status: status, Msg: c.redact(msg)}
}

// redact removes the API key from text that may echo the request URL.
func (c *Client) redact(text string) string {
	key := c.opts.APIKey
	if key == "" {
		return text
	}
	text = strings.ReplaceAll(text, key, redactedKey)
	if escaped := url.QueryEscape(key); escaped != key {
		text = strings.ReplaceAll(text, escaped, redactedKey)
	}
	return text
}

// IsTransient reports whether err is systemic (quota or transport) rather than specific
// to one symbol or date.
func IsTransient(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNetwork)
}
