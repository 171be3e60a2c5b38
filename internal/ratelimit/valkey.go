package ratelimit

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyKeyPrefix = "mkquotes:ratelimit:"
	valkeyWindow    = time.Minute
)

type ValkeyOptions struct {
	Address   string
	Password  string
	TLS       bool
	PerMinute int
}

// ValkeyLimiter is a fixed-window counter shared by every instance pointing
// at the same valkey.
type ValkeyLimiter struct {
	client    valkey.Client
	perMinute int
	now       func() time.Time
}

func NewValkeyLimiter(ctx context.Context, opts ValkeyOptions) (*ValkeyLimiter, error) {
	clientOpts := valkey.ClientOption{
		InitAddress:      []string{opts.Address},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey %s: %w", opts.Address, err)
	}

	perMinute := opts.PerMinute
	if perMinute <= 0 {
		perMinute = 1
	}
	return &ValkeyLimiter{
		client:    client,
		perMinute: perMinute,
		now:       time.Now,
	}, nil
}

func (l *ValkeyLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowKey, resetIn := windowKey(key, now)

	results := l.client.DoMulti(ctx,
		l.client.B().Incr().Key(windowKey).Build(),
		l.client.B().Expire().Key(windowKey).Seconds(int64(2*valkeyWindow/time.Second)).Build(),
	)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return Decision{}, fmt.Errorf("valkey rate counter %s: %w", windowKey, err)
		}
	}
	count, err := results[0].AsInt64()
	if err != nil {
		return Decision{}, fmt.Errorf("read valkey rate counter %s: %w", windowKey, err)
	}

	return decide(count, l.perMinute, resetIn), nil
}

func (l *ValkeyLimiter) Close() {
	l.client.Close()
}

// windowKey buckets now into a one-minute window and reports how long until
// the window resets.
func windowKey(key string, now time.Time) (string, time.Duration) {
	start := now.UTC().Truncate(valkeyWindow)
	return valkeyKeyPrefix + key + ":" + strconv.FormatInt(start.Unix(), 10), start.Add(valkeyWindow).Sub(now)
}

func decide(count int64, limit int, resetIn time.Duration) Decision {
	decision := Decision{Limit: limit}
	if count > int64(limit) {
		decision.RetryAfter = resetIn
		return decision
	}
	decision.Allowed = true
	decision.Remaining = limit - int(count)
	return decision
}
