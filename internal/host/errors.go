package host

import "errors"

var (
	// ErrLoopRunning is returned when Run is called on a loop that is already running.
	ErrLoopRunning = errors.New("host: loop is already running")

	// ErrPanic wraps a value recovered from a posted function.
	ErrPanic = errors.New("host: posted function panicked")
)
