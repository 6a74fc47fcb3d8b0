package sched

import "errors"

// ErrInvalidFrameRate is returned by SetFrameRate for rates outside [0, 125].
var ErrInvalidFrameRate = errors.New("sched: frame rate must be between 0 and 125")
