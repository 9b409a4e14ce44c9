package util

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
)

var errFlaky = errors.New("flaky")

func TestRetrySucceedsAfterFailures(t *testing.T) {
	clk := testclock.NewDilatedWallClock(time.Millisecond)
	calls := 0
	err := Retry(context.Background(), clk, 4, time.Second, nil, func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("unexpected call count: %d", calls)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	clk := testclock.NewDilatedWallClock(time.Millisecond)
	calls := 0
	err := Retry(context.Background(), clk, 3, time.Second, nil, func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("unexpected call count: %d", calls)
	}
}

func TestRetryStopsOnFatal(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	err := Retry(context.Background(), nil, 5, time.Second, func(err error) bool { return err == errFlaky }, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("expected single fatal call, got %v after %d", err, calls)
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(time.Second, 30*time.Second, tc.n); got != tc.want {
			t.Fatalf("Backoff(n=%d) = %s, want %s", tc.n, got, tc.want)
		}
	}
	if got := Backoff(time.Second, 0, 5); got != 32*time.Second {
		t.Fatalf("uncapped backoff: %s", got)
	}
}
