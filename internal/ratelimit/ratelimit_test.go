package ratelimit

import (
	"context"
	"testing"
	"time"

	"horse.fit/mkquotes/internal/config"
)

func TestMemoryLimiter_BurstThenDeny(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(3)
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(context.Background(), "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("expected remaining %d, got %d", 2-i, decision.Remaining)
		}
	}

	decision, err := limiter.Allow(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow() error = %v", err)
	}
	if decision.Allowed {
		t.Fatalf("expected fourth request to be denied")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 20*time.Second {
		t.Fatalf("expected retry after one token refill (20s), got %s", decision.RetryAfter)
	}

	other, _ := limiter.Allow(context.Background(), "10.0.0.2")
	if !other.Allowed {
		t.Fatalf("expected separate key to have its own bucket")
	}

	now = now.Add(20 * time.Second)
	decision, _ = limiter.Allow(context.Background(), "10.0.0.1")
	if !decision.Allowed {
		t.Fatalf("expected a token to refill after 20s")
	}
}

func TestWindowKeyAndDecide(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 45, 0, time.UTC)
	key, resetIn := windowKey("10.0.0.1", now)
	if key != "mkquotes:ratelimit:10.0.0.1:"+"1780315200" {
		t.Fatalf("unexpected window key: %q", key)
	}
	if resetIn != 15*time.Second {
		t.Fatalf("expected 15s until reset, got %s", resetIn)
	}

	if d := decide(2, 3, resetIn); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("expected allowed with 1 remaining, got %+v", d)
	}
	if d := decide(4, 3, resetIn); d.Allowed || d.RetryAfter != resetIn {
		t.Fatalf("expected denial until window reset, got %+v", d)
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	t.Parallel()

	limiter, err := New(context.Background(), &config.Config{RateLimitBackend: "off"})
	if err != nil {
		t.Fatalf("New(off) error = %v", err)
	}
	if _, ok := limiter.(Unlimited); !ok {
		t.Fatalf("expected Unlimited, got %T", limiter)
	}

	limiter, err = New(context.Background(), &config.Config{RateLimitBackend: "Memory", RateLimitPerMinute: 5})
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	defer limiter.Close()
	if _, ok := limiter.(*MemoryLimiter); !ok {
		t.Fatalf("expected *MemoryLimiter, got %T", limiter)
	}

	if _, err := New(context.Background(), &config.Config{RateLimitBackend: "redis"}); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}
