// Package job provides ready-made callbacks for common shapes of cooperative
// work.
package job

import (
	"time"

	"coopsched/internal/sched"
)

// Yielder reports whether the running callback should hand control back to
// the host. *sched.Scheduler implements it.
type Yielder interface {
	ShouldYield() bool
}

// Chunked returns a callback that calls step until it reports done. Between
// steps it checks y, and when y asks to yield it returns a continuation that
// resumes with the next step on a later turn.
func Chunked(y Yielder, step func() (done bool)) sched.Callback {
	var cb sched.Callback
	cb = func(bool) (sched.Result, error) {
		for {
			if step() {
				return sched.Done(), nil
			}
			if y.ShouldYield() {
				return sched.Continue(cb), nil
			}
		}
	}
	return cb
}

// Spin runs fn for i in [0, n) as chunked work.
func Spin(y Yielder, n int, fn func(i int)) sched.Callback {
	i := 0
	return Chunked(y, func() bool {
		if i >= n {
			return true
		}
		fn(i)
		i++
		return i >= n
	})
}

// Sleep returns chunked work that blocks the host for d in total, sleeping at
// most slice at a time.
func Sleep(y Yielder, d, slice time.Duration) sched.Callback {
	if slice <= 0 {
		slice = time.Millisecond
	}
	remaining := d
	return Chunked(y, func() bool {
		if remaining <= 0 {
			return true
		}
		step := min(slice, remaining)
		time.Sleep(step)
		remaining -= step
		return remaining <= 0
	})
}
