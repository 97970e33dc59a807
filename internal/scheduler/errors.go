package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is already running.
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrInvalidRate is returned by Start for a non-positive update rate.
	ErrInvalidRate = errors.New("updates per second must be positive")

	// ErrNilState is returned by ChangeState when no target state is given.
	ErrNilState = errors.New("state must not be nil")
)

// PanicError wraps a value recovered from a panicking hook.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// safeCall runs fn and converts a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// errorAttrs returns the log attributes for err, including the stack of a
// recovered panic.
func errorAttrs(err error) []any {
	attrs := []any{"error", err}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	return attrs
}
