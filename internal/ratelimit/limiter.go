package ratelimit

import (
	"context"
	"fmt"
	"time"

	"horse.fit/mkquotes/internal/config"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key over a one-minute window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Close()
}

// New builds the limiter selected by RATE_LIMIT_BACKEND.
func New(ctx context.Context, cfg *config.Config) (Limiter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	switch cfg.RateLimitBackendName() {
	case config.RateLimitBackendOff:
		return Unlimited{}, nil
	case config.RateLimitBackendMemory:
		return NewMemoryLimiter(cfg.RateLimitPerMinute), nil
	case config.RateLimitBackendValkey:
		return NewValkeyLimiter(ctx, ValkeyOptions{
			Address:   cfg.ValkeyAddress,
			Password:  cfg.ValkeyPassword,
			TLS:       cfg.ValkeyTLS,
			PerMinute: cfg.RateLimitPerMinute,
		})
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}
}

// Unlimited allows everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

func (Unlimited) Close() {}
