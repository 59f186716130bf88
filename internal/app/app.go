package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"fxrec/internal/cache"
	"fxrec/internal/config"
	"fxrec/internal/service"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	serviceOpts []service.Option
}

// NewApp constructs a new application handle. Options are forwarded to every service the
// app opens.
func NewApp(cfg *config.Config, logger zerolog.Logger, opts ...service.Option) *App {
	return &App{
		Config:      cfg,
		Logger:      logger.With().Str("component", "app").Logger(),
		serviceOpts: opts,
	}
}

// openService connects the configured cache and wraps it in a service. The returned
// closer releases the cache.
func (a *App) openService(ctx context.Context) (*service.Service, func(), error) {
	c, err := cache.New(ctx, a.Config.CacheOptions(), a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := c.Close(); err != nil {
			a.Logger.Warn().Err(err).Str("backend", c.Name()).Msg("close cache")
		}
	}

	svc, err := service.New(a.Config, c, a.Logger, a.serviceOpts...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return svc, closer, nil
}

func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// RatesOptions describe one extraction from the command line.
type RatesOptions struct {
	Bases      string
	Targets    string
	From       time.Time
	To         time.Time
	Invert     bool
	Credential string
	CSVPath    string
	PNGPath    string
	MaxPoints  int
}

// AuditOptions describe one audit run from the command line.
type AuditOptions struct {
	Path        string
	DateFormat  string
	Threshold   *float64
	TestingMode bool
	Invert      bool
	Credential  string
	CSVPath     string
	Quiet       bool
}

// ClearCache empties the configured cache backend.
func (a *App) ClearCache(ctx context.Context) error {
	svc, closeSvc, err := a.openService(ctx)
	if err != nil {
		return err
	}
	defer closeSvc()

	if err := svc.ClearCache(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}
