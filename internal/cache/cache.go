package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable indicates that a configured backend could not be reached and no
// fallback was permitted.
var ErrUnavailable = errors.New("cache backend unavailable")

// Cache is a key/value store with per-entry TTL. An expired entry reads as absent.
// Values are stored as JSON; Get decodes into dst.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Name() string
	Close() error
}

// Backend selects a Cache implementation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendBadger Backend = "badger"
)

// ParseBackend normalises a configured backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendMemory, BackendRedis, BackendBadger:
		return b, nil
	default:
		return "", fmt.Errorf("unknown cache backend %q", s)
	}
}

// Options configure New.
type Options struct {
	Backend    Backend
	RedisURL   string
	KeyPrefix  string
	BadgerPath string
	// ProbeTimeout bounds the reachability check of networked backends.
	ProbeTimeout time.Duration
}

// New builds the configured backend. Auto tries Redis and falls back to memory when the
// server does not answer.
func New(ctx context.Context, opts Options, logger zerolog.Logger) (Cache, error) {
	logger = logger.With().Str("component", "cache").Logger()
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 2 * time.Second
	}

	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendBadger:
		return OpenBadger(opts.BadgerPath, opts.KeyPrefix, logger)
	case BackendRedis:
		c, err := DialRedis(ctx, opts.RedisURL, opts.KeyPrefix, opts.ProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return c, nil
	case BackendAuto, "":
		c, err := DialRedis(ctx, opts.RedisURL, opts.KeyPrefix, opts.ProbeTimeout)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, using in-process cache")
			return NewMemory(), nil
		}
		logger.Info().Msg("using redis cache")
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
