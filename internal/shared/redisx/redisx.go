package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// Open connects to Redis and verifies the connection with a bounded ping.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// OpenWithRetry keeps dialing with exponential backoff until the connection
// succeeds, attempts are exhausted, or ctx is cancelled. Used by long-lived
// consumers that must outlast a store restart at boot.
func OpenWithRetry(ctx context.Context, cfg Config, attempts int, baseDelay time.Duration) (*redis.Client, error) {
	if attempts <= 0 {
		attempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	var lastErr error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		client, err := Open(ctx, cfg)
		if err == nil {
			return client, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
