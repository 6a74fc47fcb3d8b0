// Package host provides the event-loop substrates a cooperative scheduler
// plugs into.
//
// A Host offers exactly two primitives: posting a function to run once the
// current synchronous work has finished, and arming a cancellable one-shot
// timer. Everything a Host runs runs on one logical thread, so callers never
// observe two posted functions executing at the same time.
package host

import "time"

// Host is the inbound interface a scheduler expects from its environment.
type Host interface {
	// Post queues fn to run after the current work, with no minimum delay.
	Post(fn func())

	// AfterFunc arranges for fn to run once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from firing. It reports whether the call was
	// still pending.
	Stop() bool
}

// timerKey orders timers by due time, then by arming order.
type timerKey struct {
	due time.Duration
	seq uint64
}

// cmpTimerKey is the red-black tree comparator for timerKey.
func cmpTimerKey(a, b any) int {
	ka, kb := a.(timerKey), b.(timerKey)
	switch {
	case ka.due < kb.due:
		return -1
	case ka.due > kb.due:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
