package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// execError marks a callback that panicked, timed out or was cancelled,
// as opposed to one that returned an error.
type execError struct {
	err error
}

func (e *execError) Error() string { return e.err.Error() }
func (e *execError) Unwrap() error { return e.err }

// run calls fn with a deadline. It returns as soon as the deadline passes
// even if fn ignores its context; fn's late result is discarded. When
// parent ends first, the parent's error is returned unlabelled.
func (s *Supervisor) run(parent context.Context, timeout time.Duration, timeoutErr error, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &execError{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		if err == nil || ctx.Err() == nil {
			return err
		}
		if parent.Err() != nil {
			return &execError{err: parent.Err()}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &execError{err: fmt.Errorf("%w after %s", timeoutErr, timeout)}
		}
		return err
	case <-ctx.Done():
		if parent.Err() != nil {
			return &execError{err: parent.Err()}
		}
		return &execError{err: fmt.Errorf("%w after %s", timeoutErr, timeout)}
	}
}
