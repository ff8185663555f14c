package advisory

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how a failed request is retried.
type RetryConfig struct {
	MaxAttempts int           // Total attempts including the first.
	InitDelay   time.Duration // Delay before the first retry; doubles each attempt.
	MaxDelay    time.Duration
	Jitter      bool // ±25% random jitter on each delay.
}

// DefaultRetryConfig is 3 attempts, 500ms doubling up to 10s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// permanentError stops retrying.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// retryAfterError carries a server-provided delay hint.
type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry runs fn until it succeeds, returns a permanent error, the attempts
// run out or ctx is done.
func retry(ctx context.Context, cfg RetryConfig, sleep sleepFunc, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return errors.Join(lastErr, err)
			}
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var stop *permanentError
		if errors.As(lastErr, &stop) {
			return stop.err
		}

		if attempt < attempts-1 {
			delay := backoff(cfg, attempt)
			var hint *retryAfterError
			if errors.As(lastErr, &hint) && hint.after > delay {
				delay = hint.after
				if cfg.MaxDelay > 0 {
					delay = min(delay, cfg.MaxDelay)
				}
			}
			if err := sleep(ctx, delay); err != nil {
				return errors.Join(lastErr, err)
			}
		}
	}
	return lastErr
}

// backoff returns the delay after the given 0-indexed attempt.
func backoff(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.InitDelay << attempt
	if delay < 0 || (cfg.MaxDelay > 0 && delay > cfg.MaxDelay) {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter && delay > 0 {
		if quarter := int64(delay) / 4; quarter > 0 {
			j := time.Duration(rand.Int64N(quarter))
			if rand.IntN(2) == 0 {
				delay += j
			} else {
				delay -= j
			}
		}
	}
	return delay
}
