package providers

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultMaxAttempts is the attempt bound for the 503 retry loop.
const DefaultMaxAttempts = 5

// Backoff is the retry policy for providers whose backend may report
// "model is loading" via HTTP 503.
//
// The loop makes up to MaxAttempts attempts, sleeping BaseDelay<<n
// after the n-th failed attempt (1s, 2s, 4s, ... with the default base).
// No sleep follows the final attempt. Only errors matching Retryable
// are retried; everything else returns immediately.
type Backoff struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay after the first failed attempt; it doubles
	// with each subsequent failure.
	BaseDelay time.Duration

	// Retryable reports whether an error qualifies for another attempt.
	Retryable func(error) bool

	// Sleep waits for the given duration or until the context is done.
	// Injectable so tests run without real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultBackoff returns the policy used in production: five attempts,
// one-second base delay, retrying only ErrModelLoading.
func DefaultBackoff() Backoff {
	return Backoff{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   time.Second,
		Retryable: func(err error) bool {
			return errors.Is(err, ErrModelLoading)
		},
		Sleep: sleepContext,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. When attempts run out, the last error is
// wrapped in a RetriesExhaustedError carrying its message.
func (b Backoff) Do(ctx context.Context, provider string, op func(ctx context.Context) error) error {
	maxAttempts := b.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	retryable := b.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return errors.Is(err, ErrModelLoading) }
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == maxAttempts-1 {
			break
		}

		delay := b.BaseDelay << attempt
		slog.Warn("provider not ready, backing off",
			"provider", provider,
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			"delay", delay,
		)
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}

	return &RetriesExhaustedError{
		Provider:    provider,
		Attempts:    maxAttempts,
		LastMessage: lastErr.Error(),
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
