package database

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// retryAttempts is the total number of tries for a transient failure: one retry.
const retryAttempts = 2

// retryBackOff is the wait between attempts. Tests shorten it.
var retryBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

// IsTransient reports whether err is worth retrying: timeouts, dropped
// connections and errors pgconn marks safe to retry. Query errors returned by
// the server (constraint violations, bad SQL) are permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception; 57P01: admin shutdown; 40001: serialization failure
		return strings.HasPrefix(pgErr.Code, "08") || pgErr.Code == "57P01" || pgErr.Code == "40001"
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Retry runs op and retries it once after a short backoff if it fails with a
// transient error. Each attempt is bounded by timeout. Use it for reads and
// other statements that are safe to repeat.
func Retry[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	return retry(ctx, timeout, IsTransient, op)
}

// RetryWrite is Retry for non-idempotent statements: it only retries when
// pgconn reports the statement never reached the server, so a lost reply can
// not apply the write twice.
func RetryWrite[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	return retry(ctx, timeout, pgconn.SafeToRetry, op)
}

// DefaultStoreTimeout bounds a store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// WithStoreTimeout bounds ctx by timeout, or by DefaultStoreTimeout when
// timeout is not positive. Use it around statements and transactions that
// are not retried.
func WithStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func retry[T any](ctx context.Context, timeout time.Duration, transient func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := WithStoreTimeout(ctx, timeout)
		defer cancel()
		v, err := op(attemptCtx)
		if err != nil && !transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(retryBackOff()), backoff.WithMaxTries(retryAttempts))
}
