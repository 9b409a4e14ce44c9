package util

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

const minRetryDelay = 100 * time.Millisecond

// Retry executes fn up to attempts times, doubling delay between calls.
// Errors for which retryable returns false are returned immediately. The
// returned error is the last error fn produced, or the context error when
// ctx ends first.
func Retry(ctx context.Context, clk clock.Clock, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	if delay < minRetryDelay {
		delay = minRetryDelay
	}
	if clk == nil {
		clk = clock.WallClock
	}
	var last error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			last = fn()
			return last
		},
		IsFatalError: func(err error) bool {
			return retryable != nil && !retryable(err)
		},
		Attempts:    attempts,
		Delay:       delay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if last != nil {
		return last
	}
	return err
}

// Backoff returns the wait before retry number n (0-based): base doubled n
// times, capped at max when max is positive.
func Backoff(base, max time.Duration, n int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < n; i++ {
		if max > 0 && d >= max {
			return max
		}
		d *= 2
	}
	if max > 0 && d > max {
		return max
	}
	return d
}
