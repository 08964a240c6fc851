// utils/poll.go
package utils

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// ErrPollTimeout is returned when polling stops because either ceiling was
// reached before the check reported done.
var ErrPollTimeout = errors.New("polling exceeded attempt or time ceiling")

// errNotDone marks a check that returned no error but is not finished yet, so
// the retry policy keeps going.
var errNotDone = errors.New("not done")

// PollConfig bounds a polling loop by both an attempt count and a wall-clock
// ceiling. Unbounded polling is a defect, so both ceilings always apply;
// zero values fall back to the defaults below.
type PollConfig struct {
	Interval    time.Duration // base delay between checks
	Backoff     bool          // exponential backoff between failed checks
	MaxAttempts int
	MaxWait     time.Duration
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.MaxWait <= 0 {
		c.MaxWait = 30 * time.Second
	}
	return c
}

// retryPolicy builds the attempt ceiling and delay schedule. The wall-clock
// ceiling rides on the execution context so cancellation cuts a delay short.
func (c PollConfig) retryPolicy() retrypolicy.RetryPolicy[any] {
	builder := retrypolicy.NewBuilder[any]().
		WithMaxRetries(c.MaxAttempts - 1)
	if c.Backoff {
		maxDelay := c.MaxWait
		if maxDelay < c.Interval {
			maxDelay = c.Interval
		}
		builder = builder.WithBackoff(c.Interval, maxDelay)
	} else {
		builder = builder.WithDelay(c.Interval)
	}
	return builder.Build()
}

// Poll runs check until it reports done, the context is cancelled, or a
// ceiling is hit. The last check error is wrapped into the timeout error so
// callers can surface something actionable.
func Poll(ctx context.Context, cfg PollConfig, check func(ctx context.Context) (done bool, err error)) error {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.MaxWait)
	defer cancel()

	var lastErr error
	err := failsafe.With(cfg.retryPolicy()).WithContext(ctx).Run(func() error {
		done, err := check(ctx)
		if done {
			return nil
		}
		if err != nil {
			lastErr = err
			return err
		}
		return errNotDone
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return pollErr(err, lastErr)
	default:
		return pollErr(ErrPollTimeout, lastErr)
	}
}

// PollTask is a cancellable background polling handle.
type PollTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// StartPoll runs Poll on its own goroutine and returns a handle.
func StartPoll(ctx context.Context, cfg PollConfig, check func(ctx context.Context) (bool, error)) *PollTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &PollTask{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.err = Poll(ctx, cfg, check)
	}()
	return t
}

// Cancel stops the task; Wait still returns afterwards.
func (t *PollTask) Cancel() {
	t.cancel()
}

// Wait blocks until the task finishes and returns its result.
func (t *PollTask) Wait() error {
	<-t.done
	return t.err
}

func pollErr(cause, last error) error {
	if last != nil {
		return errors.Join(cause, last)
	}
	return cause
}
