package argwait

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	ErrAlreadyCompleted = errors.New("completion handle called more than once")
	ErrGroupSealed      = errors.New("group element reserved after then")
	ErrForeignScheduler = errors.New("nested coordinator runs on another scheduler")
	ErrSelfJoin         = errors.New("coordinator passed to itself")
	ErrLoopRunning      = errors.New("loop is already running")
	ErrLoopClosed       = errors.New("loop is closed")
	ErrUnknownPolicy    = errors.New("unknown error policy")
)

// UncaughtError is the fatal result of an error that no handler consumed.
type UncaughtError struct {
	Err         error
	Coordinator string
}

func (e *UncaughtError) Error() string {
	return fmt.Sprintf("uncaught error in coordinator %s: %v", e.Coordinator, e.Err)
}

func (e *UncaughtError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking continuation, finalizer,
// error handler or worker, together with the stack at the point of the panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{
		Value: v,
		Stack: string(buf[:n]),
	}
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newPanicError(r)
		}
	}()
	return fn()
}
