package sched

import (
	"fmt"
	"time"
)

// flushWork runs one pass of the work loop. It is the entry point the host
// bridge invokes on every host turn. It reports whether ready work remains.
func (s *Scheduler) flushWork(hasTimeRemaining bool, initialTime time.Duration) (more bool, err error) {
	// A pass is starting, so the one we asked the host for has arrived, and
	// any pending wake-up is redundant.
	s.hostCallbackScheduled = false
	s.cancelHostTimeout()

	s.performingWork = true
	previousPriority := s.currentPriority
	s.emit(Event{Kind: EventPassStart})

	defer func() {
		// A callback that failed has already lost its callback; drop it
		// rather than leave it at the head for the next pass.
		if t := s.currentTask; t != nil && t.callback == nil && t == s.queues.peekReady() {
			s.queues.popReady()
		}
		s.currentTask = nil
		s.currentPriority = previousPriority
		s.performingWork = false

		elapsed := s.clock.Now() - initialTime
		s.logger.Debug("pass finished", "elapsed", elapsed, "more_pending", more,
			"ready", s.queues.ready.Len(), "delayed", s.queues.delayed.Len())
		s.emit(Event{Kind: EventPassEnd, MorePending: more})
	}()

	return s.workLoop(hasTimeRemaining, initialTime)
}

func (s *Scheduler) workLoop(hasTimeRemaining bool, initialTime time.Duration) (bool, error) {
	currentTime := initialTime
	s.advanceTimers(currentTime)
	s.currentTask = s.queues.peekReady()

	for s.currentTask != nil && !s.paused {
		t := s.currentTask

		// Not expired yet and the host wants control back: stop here.
		if t.expirationTime > currentTime && (!hasTimeRemaining || s.ShouldYield()) {
			s.emitTask(EventYield, t)
			break
		}

		cb := t.callback
		if cb == nil {
			s.queues.popReady()
			s.currentTask = s.queues.peekReady()
			continue
		}

		t.callback = nil
		s.currentPriority = t.priority
		didTimeout := t.expirationTime <= currentTime
		s.emit(Event{Kind: EventRun, TaskID: t.id, Priority: t.priority, DidTimeout: didTimeout})

		res, err := cb(didTimeout)
		currentTime = s.clock.Now()
		if err != nil {
			err = fmt.Errorf("task %d: %w", t.id, err)
			s.emit(Event{Kind: EventError, TaskID: t.id, Priority: t.priority, Err: err})
			return true, err
		}

		if next, ok := res.Continuation(); ok {
			t.callback = next
			s.emitTask(EventContinue, t)
		} else {
			s.emitTask(EventComplete, t)
			// The callback may have scheduled more urgent work ahead of it.
			if t == s.queues.peekReady() {
				s.queues.popReady()
			}
		}

		s.advanceTimers(currentTime)
		s.currentTask = s.queues.peekReady()
	}

	if s.paused {
		return false, nil
	}
	if s.currentTask != nil {
		return true, nil
	}

	if first := s.queues.peekDelayed(); first != nil {
		s.requestHostTimeout(first.startTime - currentTime)
	}
	return false, nil
}

// handleTimeout runs when the deferred wake-up fires: it promotes due timers
// and asks for a host turn if that produced ready work.
func (s *Scheduler) handleTimeout(currentTime time.Duration) {
	s.hostTimeoutScheduled = false
	s.advanceTimers(currentTime)

	if s.hostCallbackScheduled {
		return
	}
	if s.queues.peekReady() != nil {
		s.requestHostCallback()
		return
	}
	if first := s.queues.peekDelayed(); first != nil {
		s.requestHostTimeout(first.startTime - currentTime)
	}
}

func (s *Scheduler) advanceTimers(currentTime time.Duration) {
	s.queues.advanceTimers(currentTime, func(t *Task) {
		s.emitTask(EventPromote, t)
	})
}
