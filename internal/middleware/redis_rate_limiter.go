package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "myanus:rl:"
	redisCallTimeout = 250 * time.Millisecond
	// Counters outlive their window by this much; replica clocks differ.
	redisKeyGrace = 2 * time.Second
)

// redisRateLimiter keeps one counter per (route, caller, window) so every API
// replica shares the same chat and join budgets.
type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisRateLimiter connects to redis and returns a shared limiter.
// Once running, redis errors fail open: the request is allowed and logged.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  redisCallTimeout,
		WriteTimeout: redisCallTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newRedisRateLimiter(client, logger), nil
}

func newRedisRateLimiter(client *redis.Client, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{client: client, logger: logger, now: time.Now}
}

// counterKey is myanus:rl:<route>:<subject>:<window index>.
func counterKey(key RateKey, bucket int64) string {
	return fmt.Sprintf("%s%s:%s:%d", redisKeyPrefix, key.Route, key.Subject, bucket)
}

// Allow increments the caller's counter for the current window and sets its
// expiry in one MULTI round trip.
func (rl *redisRateLimiter) Allow(key RateKey, limit int, window time.Duration) RateDecision {
	if limit <= 0 {
		return RateDecision{Allowed: true}
	}
	bucket, closes := windowBucket(rl.now(), window)
	k := counterKey(key, bucket)

	ctx, cancel := context.WithTimeout(context.Background(), redisCallTimeout)
	defer cancel()

	var hits *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, k)
		pipe.ExpireAt(ctx, k, closes.Add(redisKeyGrace))
		return nil
	})
	if err != nil {
		rl.logger.Warn("rate limiter unavailable, allowing request",
			"route", key.Route, "subject", key.Subject, "error", err)
		return RateDecision{Allowed: true}
	}
	n := int(hits.Val())
	return RateDecision{Allowed: n <= limit, Count: n, WindowEnd: closes}
}

func (rl *redisRateLimiter) Close() {
	if rl.client != nil {
		_ = rl.client.Close()
	}
}
