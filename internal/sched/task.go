package sched

import "time"

// TaskID uniquely identifies a task within one Scheduler. IDs are strictly
// increasing and never reused.
type TaskID uint64

// Callback is a unit of schedulable work. didTimeout reports whether the task
// had already expired when it was invoked. Returning Continue keeps the task
// at the head of the ready queue with a new callback; returning an error
// aborts the current pass.
type Callback func(didTimeout bool) (Result, error)

// Result is the outcome of a Callback: either done, or continue with another
// callback under the same task.
type Result struct {
	next Callback
}

// Done reports that the task has finished.
func Done() Result { return Result{} }

// Continue reports that the task has more work, to be resumed by next.
func Continue(next Callback) Result { return Result{next: next} }

// Continuation returns the callback to resume with, if any.
func (r Result) Continuation() (Callback, bool) {
	return r.next, r.next != nil
}

// Task represents one schedulable unit of work. Its identity, priority and
// timing are fixed when it is scheduled.
type Task struct {
	id             TaskID
	priority       Priority
	startTime      time.Duration // not eligible to run before this
	expirationTime time.Duration // startTime + priority.Timeout()

	// sortIndex is the heap key in effect: startTime while delayed,
	// expirationTime once ready.
	sortIndex time.Duration
	callback  Callback
}

// ID returns the task's id.
func (t *Task) ID() TaskID { return t.id }

// Priority returns the level the task was scheduled at, after normalization.
func (t *Task) Priority() Priority { return t.priority }

// StartTime returns the earliest time the task may run.
func (t *Task) StartTime() time.Duration { return t.startTime }

// ExpirationTime returns the time after which the task runs even when the
// host wants control back.
func (t *Task) ExpirationTime() time.Duration { return t.expirationTime }

// Cancelled reports whether the task has no callback left to run, either
// because it was cancelled or because it has finished.
func (t *Task) Cancelled() bool { return t.callback == nil }

// compareTasks orders tasks by sortIndex, then by ID.
func compareTasks(a, b *Task) int {
	switch {
	case a.sortIndex < b.sortIndex:
		return -1
	case a.sortIndex > b.sortIndex:
		return 1
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	default:
		return 0
	}
}
