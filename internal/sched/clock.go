package sched

import "time"

// Clock is a monotonic time source. Now must never decrease.
type Clock interface {
	Now() time.Duration
}

// MonotonicClock measures time elapsed since it was created, using the
// monotonic reading carried by time.Time.
type MonotonicClock struct {
	origin time.Time
}

// NewMonotonicClock returns a clock that reads zero now.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{origin: time.Now()}
}

func (c *MonotonicClock) Now() time.Duration {
	return time.Since(c.origin)
}
