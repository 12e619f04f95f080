package retry

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrTooManyAttempts = errors.New("too many retry attempts")

// Callable is invoked once per attempt, attempts are counted from 1
type Callable func(ctx context.Context, attempt int) error

type retryableError struct {
	err     error
	attempt int
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable marks err as worth another attempt. Any other error returned
// from a Callable stops the loop immediately.
func Retryable(err error, attempt int) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err, attempt: attempt}
}

type Attempts interface {
	Next() (time.Duration, bool)
	Current() int
}

func Start(ctx context.Context, a Attempts, cb Callable) error {
	var lastErr error

	for {
		err := cb(ctx, a.Current())
		if err == nil {
			return nil
		}

		var re *retryableError
		if !errors.As(err, &re) {
			return errors.Wrapf(err, "attempt %d failed", a.Current())
		}
		lastErr = re.err

		next, stop := a.Next()
		if stop {
			return errors.Wrapf(ErrTooManyAttempts, "last error: %v", lastErr)
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(ctx.Err(), "gave up after %d attempts, last error: %v", a.Current()-1, lastErr)
		case <-timer.C:
		}
	}
}

// Incremental waits step, 2*step, 3*step... between attempts
func Incremental(ctx context.Context, step time.Duration, maxAttempts int, cb Callable) error {
	return Start(ctx, IncrementalAttempts(step, maxAttempts), cb)
}

type incrementalAttempts struct {
	mu   sync.RWMutex
	prev time.Duration
	step time.Duration
	max  int
	curr int
}

func (a *incrementalAttempts) Next() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.curr >= a.max {
		return 0, true
	}
	a.curr++

	next := a.prev + a.step
	a.prev = next

	return next, false
}

func (a *incrementalAttempts) Current() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.curr
}

func IncrementalAttempts(step time.Duration, max int) Attempts {
	if max < 1 {
		max = 1
	}

	return &incrementalAttempts{
		step: step,
		max:  max,
		curr: 1,
	}
}
