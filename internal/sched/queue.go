package sched

import (
	"time"

	"coopsched/internal/minheap"
)

// taskQueues holds the ready queue, ordered by expiration time, and the
// delayed queue, ordered by start time. A task lives in at most one of them.
type taskQueues struct {
	ready   *minheap.Heap[*Task]
	delayed *minheap.Heap[*Task]
}

func newTaskQueues() taskQueues {
	return taskQueues{
		ready:   minheap.New(compareTasks),
		delayed: minheap.New(compareTasks),
	}
}

// push places t in the delayed queue if it starts after now, otherwise in the
// ready queue. It reports whether t went to the ready queue.
func (q *taskQueues) push(t *Task, now time.Duration) bool {
	if t.startTime > now {
		t.sortIndex = t.startTime
		q.delayed.Push(t)
		return false
	}
	t.sortIndex = t.expirationTime
	q.ready.Push(t)
	return true
}

func (q *taskQueues) peekReady() *Task {
	t, _ := q.ready.Peek()
	return t
}

func (q *taskQueues) popReady() *Task {
	t, _ := q.ready.Pop()
	return t
}

func (q *taskQueues) peekDelayed() *Task {
	t, _ := q.delayed.Peek()
	return t
}

// advanceTimers moves every delayed task whose start time has passed into the
// ready queue, discarding cancelled ones on the way. promoted is called for
// each task that moves.
func (q *taskQueues) advanceTimers(now time.Duration, promoted func(*Task)) {
	for {
		t, ok := q.delayed.Peek()
		if !ok {
			return
		}
		switch {
		case t.callback == nil:
			q.delayed.Pop()
		case t.startTime <= now:
			q.delayed.Pop()
			t.sortIndex = t.expirationTime
			q.ready.Push(t)
			if promoted != nil {
				promoted(t)
			}
		default:
			// the delayed queue is start-time ordered, so everything
			// after t starts later still
			return
		}
	}
}
