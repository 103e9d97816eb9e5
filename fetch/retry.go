// Package fetch retrieves exchange rates and quotes from a fxfolio.Source with retry,
// fallback and batching policies, and returns them as immutable maps.
package fetch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/etnz/fxfolio/remote"
)

// Policy describes how many times an operation is attempted and how long to wait between attempts.
type Policy struct {
	MaxAttempts int           // total attempts, at least 1
	BaseDelay   time.Duration // wait after the first failure
	Multiplier  float64       // growth of the wait after each failure, 1 for a constant wait
	MaxDelay    time.Duration // cap on the wait, 0 for none
}

// Exponential returns a policy doubling its delay after each failure.
func Exponential(attempts int, base time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: base, Multiplier: 2}
}

// Constant returns a policy waiting the same delay after each failure.
func Constant(attempts int, delay time.Duration) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: delay, Multiplier: 1}
}

// Delay returns the wait after the failed attempt number 'attempt' (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

func (p Policy) attempts() int { return max(p.MaxAttempts, 1) }

// FetchFailure is returned when every attempt to fetch a key failed.
type FetchFailure struct {
	Key      string
	Attempts int
	Err      error // last error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch %s: max retry attempts (%d) exceeded: %v", e.Key, e.Attempts, e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// Do calls op until it succeeds or p is exhausted, waiting p.Delay between attempts.
//
// Every error is retried, and retries bypass responses cached by a remote client, that could
// replay the failed answer. It returns a *FetchFailure on exhaustion, or the context error
// if ctx is done while waiting.
func Do[T any](ctx context.Context, key string, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	n := p.attempts()
	for attempt := 1; attempt <= n; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		opCtx := ctx
		if attempt > 1 {
			opCtx = remote.Refresh(ctx)
		}
		v, err := op(opCtx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == n {
			break
		}
		if err := Pause(ctx, p.Delay(attempt)); err != nil {
			return zero, err
		}
	}
	return zero, &FetchFailure{Key: key, Attempts: n, Err: lastErr}
}

// Pause waits for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled by context: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
