package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fxrec/internal/audit"
	"fxrec/internal/cache"
	"fxrec/internal/logging"
	"fxrec/internal/quote"
	"fxrec/internal/rates"
)

// EnvPrefix namespaces every environment override, e.g. FXREC_PROVIDER_API_KEY.
const EnvPrefix = "FXREC"

// ErrConfiguration marks missing or invalid settings, including credentials.
var ErrConfiguration = errors.New("configuration error")

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Provider ProviderConfig `mapstructure:"provider"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Routing  RoutingConfig  `mapstructure:"routing"`
	Series   SeriesConfig   `mapstructure:"series"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ProviderConfig covers the Twelve Data connection and its quota.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	QuotaRequests  int           `mapstructure:"quota_requests"`
	QuotaWindow    time.Duration `mapstructure:"quota_window"`
	QuotaMargin    time.Duration `mapstructure:"quota_margin"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CacheConfig selects the cache backend and its TTLs.
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"`
	RedisURL     string        `mapstructure:"redis_url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	BadgerPath   string        `mapstructure:"badger_path"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	RateTTL      time.Duration `mapstructure:"rate_ttl"`
	MetadataTTL  time.Duration `mapstructure:"metadata_ttl"`
	AuditRateTTL time.Duration `mapstructure:"audit_rate_ttl"`
}

// RoutingConfig sets the liquidity priority list and the cross anchor.
type RoutingConfig struct {
	StandardCurrencies []string `mapstructure:"standard_currencies"`
	Anchor             string   `mapstructure:"anchor"`
}

// SeriesConfig tunes assembly.
type SeriesConfig struct {
	FillLimit int   `mapstructure:"fill_limit"`
	Precision int32 `mapstructure:"precision"`
}

// AuditConfig holds reconciliation defaults.
type AuditConfig struct {
	VarianceThresholdPct float64 `mapstructure:"variance_threshold_pct"`
	BatchSize            int     `mapstructure:"batch_size"`
	MockVariancePct      float64 `mapstructure:"mock_variance_pct"`
	LookbackDays         int     `mapstructure:"lookback_days"`
	DateFormat           string  `mapstructure:"date_format"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from an optional .env, the config file, environment and
// defaults, in rising order of precedence from defaults to environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Defaults returns the documented defaults without consulting files or the environment.
func Defaults() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal defaults: %w", err)
	}
	return &cfg, nil
}

// loadDotEnv reads ./.env when present; existing environment variables win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fxrec")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("provider.base_url", "https://api.twelvedata.com")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.request_timeout", "30s")
	v.SetDefault("provider.quota_requests", 8)
	v.SetDefault("provider.quota_window", "60s")
	v.SetDefault("provider.quota_margin", "500ms")
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.retry_backoff", "60s")
	v.SetDefault("provider.user_agent", "fxrec/1.0")

	v.SetDefault("cache.backend", string(cache.BackendAuto))
	v.SetDefault("cache.redis_url", "redis://localhost:6379/0")
	v.SetDefault("cache.key_prefix", "forex:")
	v.SetDefault("cache.badger_path", "")
	v.SetDefault("cache.probe_timeout", "2s")
	v.SetDefault("cache.rate_ttl", "30m")
	v.SetDefault("cache.metadata_ttl", "24h")
	v.SetDefault("cache.audit_rate_ttl", "24h")

	v.SetDefault("routing.standard_currencies", []string{"EUR", "GBP", "AUD", "NZD", "USD", "CAD", "CHF"})
	v.SetDefault("routing.anchor", "USD")

	v.SetDefault("series.fill_limit", 3)
	v.SetDefault("series.precision", 6)

	v.SetDefault("audit.variance_threshold_pct", 5.0)
	v.SetDefault("audit.batch_size", 5)
	v.SetDefault("audit.mock_variance_pct", 5.0)
	v.SetDefault("audit.lookback_days", 3)
	v.SetDefault("audit.date_format", "YYYY-MM-DD")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Provider.QuotaRequests <= 0 {
		return invalid("provider.quota_requests must be greater than zero")
	}
	if c.Provider.QuotaWindow <= 0 {
		return invalid("provider.quota_window must be greater than zero")
	}
	if c.Provider.MaxRetries < 0 {
		return invalid("provider.max_retries cannot be negative")
	}
	if c.Provider.RetryBackoff <= 0 {
		return invalid("provider.retry_backoff must be greater than zero")
	}
	if _, err := cache.ParseBackend(c.Cache.Backend); err != nil {
		return invalid(err.Error())
	}
	if c.Cache.RateTTL <= 0 || c.Cache.MetadataTTL <= 0 || c.Cache.AuditRateTTL <= 0 {
		return invalid("cache TTLs must be greater than zero")
	}
	if c.Series.FillLimit <= 0 {
		return invalid("series.fill_limit must be greater than zero")
	}
	if c.Series.Precision <= 0 {
		return invalid("series.precision must be greater than zero")
	}
	if c.Audit.VarianceThresholdPct < 0 {
		return invalid("audit.variance_threshold_pct cannot be negative")
	}
	if c.Audit.MockVariancePct < 0 || c.Audit.MockVariancePct > audit.MaxMockVariancePct {
		return invalid(fmt.Sprintf("audit.mock_variance_pct must be between 0 and %g", audit.MaxMockVariancePct))
	}
	if c.Audit.LookbackDays < 0 {
		return invalid("audit.lookback_days cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return invalid("export.max_data_points must be greater than zero")
	}

	standard, err := c.StandardCurrencies()
	if err != nil {
		return invalid("routing.standard_currencies: " + err.Error())
	}
	anchor, err := rates.ParseCode(c.Routing.Anchor)
	if err != nil {
		return invalid("routing.anchor: " + err.Error())
	}
	for _, s := range standard {
		if s == anchor {
			return nil
		}
	}
	return invalid(fmt.Sprintf("routing.anchor %s 必须属于 routing.standard_currencies", anchor))
}

// StandardCurrencies parses the priority list.
func (c *Config) StandardCurrencies() ([]rates.Code, error) {
	codes, err := rates.ParseCodes(c.Routing.StandardCurrencies)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, errors.New("list is empty")
	}
	return codes, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// QuoteOptions builds client options for apiKey, which may differ from the configured key.
func (c *Config) QuoteOptions(apiKey string) quote.Options {
	p := c.Provider
	return quote.Options{
		BaseURL:       p.BaseURL,
		APIKey:        apiKey,
		Timeout:       p.RequestTimeout,
		QuotaRequests: p.QuotaRequests,
		QuotaWindow:   p.QuotaWindow,
		QuotaMargin:   p.QuotaMargin,
		MaxRetries:    p.MaxRetries,
		RetryBackoff:  p.RetryBackoff,
		UserAgent:     p.UserAgent,
	}
}

// CacheOptions maps the cache section; Validate has already checked the backend name.
func (c *Config) CacheOptions() cache.Options {
	backend, _ := cache.ParseBackend(c.Cache.Backend)
	return cache.Options{
		Backend:      backend,
		RedisURL:     c.Cache.RedisURL,
		KeyPrefix:    c.Cache.KeyPrefix,
		BadgerPath:   c.Cache.BadgerPath,
		ProbeTimeout: c.Cache.ProbeTimeout,
	}
}

// AuditOptions returns the configured audit defaults; callers override per run.
func (c *Config) AuditOptions() audit.Options {
	return audit.Options{
		Threshold:       c.Audit.VarianceThresholdPct,
		DateFormat:      c.Audit.DateFormat,
		LookbackDays:    c.Audit.LookbackDays,
		BatchSize:       c.Audit.BatchSize,
		MockVariancePct: c.Audit.MockVariancePct,
		CacheTTL:        c.Cache.AuditRateTTL,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, msg)
}
