// Package retry runs operations against flaky collaborators (lookup sources,
// a busy sqlite file) with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrMaxRetriesExceeded is joined with the last error when every attempt failed.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Config configures retry behavior.
type Config struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases.
	Multiplier float64

	// Jitter is the randomization factor (0-1).
	Jitter float64

	// RetryIf decides whether an error is transient. Nil retries everything
	// except Permanent errors.
	RetryIf func(error) bool

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a short policy suited to interactive requests.
func DefaultConfig() Config {
	return Config{
		Attempts:     3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (cfg Config) exponential() *backoff.ExponentialBackOff {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 2
	}
	opts := []backoff.ExponentialBackOffOpts{
		backoff.WithInitialInterval(cfg.InitialDelay),
		backoff.WithMultiplier(mult),
		backoff.WithRandomizationFactor(cfg.Jitter),
		backoff.WithMaxElapsedTime(0),
	}
	if cfg.MaxDelay > 0 {
		opts = append(opts, backoff.WithMaxInterval(cfg.MaxDelay))
	}
	return backoff.NewExponentialBackOff(opts...)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// are exhausted or ctx is done.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for functions returning a value.
func DoValue[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = func(err error) bool { return !IsPermanent(err) }
	}

	stopped := false
	op := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			stopped = true
			return zero, backoff.Permanent(err)
		}
		res, err := fn(ctx)
		if err != nil && !retryIf(err) {
			stopped = true
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	attempt := 0
	notify := func(err error, delay time.Duration) {
		attempt++
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(cfg.exponential(), uint64(attempts-1)), ctx)
	res, err := backoff.RetryNotifyWithData(op, b, notify)
	if err == nil || stopped {
		return res, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, errors.Join(ErrMaxRetriesExceeded, err)
}

// Backoff calculates the delay before retry number attempt+1.
func Backoff(attempt int, cfg Config) time.Duration {
	b := cfg.exponential()
	delay := b.NextBackOff()
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

// PermanentError marks an error as not worth retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so Do stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks if an error is marked as permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
