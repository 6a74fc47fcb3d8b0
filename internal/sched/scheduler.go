// Package sched implements a cooperative, priority-based task scheduler for
// single-threaded hosts.
//
// Work is submitted as callbacks tagged with a [Priority]. Each priority maps
// to a timeout that fixes the task's expiration time; ready tasks run in
// expiration order, ties broken by submission order. The scheduler runs work
// in passes on its [host.Host], checking [Scheduler.ShouldYield] between
// tasks and handing control back to the host once a pass has used its frame
// budget. Long work is written as a chain of continuations.
//
// A Scheduler is not safe for concurrent use. Every method must be called
// from the host's goroutine, which is also where callbacks run.
package sched

import (
	"fmt"
	"log/slog"
	"time"

	"coopsched/internal/host"
)

// Scheduler owns the ready and delayed queues and drives them from its host.
type Scheduler struct {
	clock     Clock
	logger    *slog.Logger
	observers []Observer
	onError   func(error)

	queues taskQueues
	nextID TaskID

	currentTask     *Task
	currentPriority Priority

	// Set while a pass is running, to prevent re-entrance.
	performingWork bool

	hostCallbackScheduled bool
	hostTimeoutScheduled  bool
	paused                bool

	bridge hostBridge
}

// New creates a Scheduler that runs its work on h.
func New(h host.Host, opts ...Option) *Scheduler {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Clock == nil {
		o.Clock = NewMonotonicClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.FrameInterval <= 0 {
		o.FrameInterval = DefaultFrameInterval
	}

	s := &Scheduler{
		clock:           o.Clock,
		logger:          o.Logger.With("component", "scheduler"),
		observers:       o.Observers,
		queues:          newTaskQueues(),
		nextID:          1,
		currentPriority: Normal,
	}

	s.onError = o.ErrorHandler
	if s.onError == nil {
		s.onError = func(err error) {
			s.logger.Error("task failed", "error", err)
		}
	}

	s.bridge = hostBridge{
		host:            h,
		clock:           o.Clock,
		defaultInterval: o.FrameInterval,
		frameInterval:   o.FrameInterval,
		onError:         s.onError,
	}
	return s
}

// ScheduleOption configures a single Schedule call.
type ScheduleOption func(*scheduleOptions)

type scheduleOptions struct {
	delay time.Duration
}

// Delay makes the task ineligible to run until d has elapsed. Non-positive
// delays are ignored.
func Delay(d time.Duration) ScheduleOption {
	return func(o *scheduleOptions) {
		o.delay = d
	}
}

// Schedule submits cb at priority p and returns its task, which can be passed
// to Cancel. Invalid priorities are treated as Normal.
func (s *Scheduler) Schedule(p Priority, cb Callback, opts ...ScheduleOption) *Task {
	o := scheduleOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	currentTime := s.clock.Now()
	task := s.newTask(p, cb, currentTime, o.delay)

	ready := s.queues.push(task, currentTime)
	s.emitTask(EventSchedule, task)

	if !ready {
		// All ready work is gone and this is now the earliest timer, so the
		// pending wake-up, if any, is too late.
		if s.queues.peekReady() == nil && task == s.queues.peekDelayed() {
			s.requestHostTimeout(task.startTime - currentTime)
		}
		return task
	}

	// Wait until the next time we yield if a pass is already running.
	if !s.hostCallbackScheduled && !s.performingWork {
		s.cancelHostTimeout()
		s.requestHostCallback()
	}
	return task
}

func (s *Scheduler) newTask(p Priority, cb Callback, currentTime, delay time.Duration) *Task {
	p = p.Normalize()

	startTime := currentTime
	if delay > 0 {
		startTime += delay
	}

	t := &Task{
		id:             s.nextID,
		priority:       p,
		startTime:      startTime,
		expirationTime: startTime + p.Timeout(),
		sortIndex:      -1,
		callback:       cb,
	}
	s.nextID++
	return t
}

// Cancel prevents t from running. The task stays in its queue until the
// scheduler next reaches it. Cancelling a finished or cancelled task is a
// no-op.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil || t.callback == nil {
		return
	}
	t.callback = nil
	s.emitTask(EventCancel, t)
}

// FirstTask returns the head of the ready queue, or nil when it is empty.
func (s *Scheduler) FirstTask() *Task {
	return s.queues.peekReady()
}

// ReadyLen returns the number of entries in the ready queue. Cancelled tasks
// count until they are discarded.
func (s *Scheduler) ReadyLen() int { return s.queues.ready.Len() }

// DelayedLen returns the number of entries in the delayed queue.
func (s *Scheduler) DelayedLen() int { return s.queues.delayed.Len() }

// Now reads the scheduler's clock.
func (s *Scheduler) Now() time.Duration { return s.clock.Now() }

// Pause stops the work loop from starting further tasks. Queued work is kept.
func (s *Scheduler) Pause() {
	s.paused = true
}

// Resume undoes Pause and asks the host for a turn if one is needed.
func (s *Scheduler) Resume() {
	s.paused = false
	if !s.hostCallbackScheduled && !s.performingWork {
		s.requestHostCallback()
	}
}

// Paused reports whether the scheduler is paused.
func (s *Scheduler) Paused() bool { return s.paused }

// ShouldYield reports whether the current host turn has used up its frame
// budget.
func (s *Scheduler) ShouldYield() bool {
	return s.bridge.shouldYield()
}

// SetFrameRate sets the frame budget to 1000/fps milliseconds. Zero restores
// the default budget. Rates outside [0, 125] are rejected and leave the budget
// unchanged.
func (s *Scheduler) SetFrameRate(fps int) error {
	if err := s.bridge.forceFrameRate(fps); err != nil {
		s.logger.Warn("frame rate rejected", "fps", fps, "error", err)
		return fmt.Errorf("set frame rate %d: %w", fps, err)
	}
	return nil
}

// FrameInterval returns the current frame budget.
func (s *Scheduler) FrameInterval() time.Duration { return s.bridge.frameInterval }

// RequestPaint is an extension point for hosts that paint between turns. The
// scheduler itself does nothing with it.
func (s *Scheduler) RequestPaint() {}

func (s *Scheduler) requestHostCallback() {
	s.hostCallbackScheduled = true
	s.bridge.requestHostCallback(s.flushWork)
}

func (s *Scheduler) requestHostTimeout(d time.Duration) {
	s.hostTimeoutScheduled = true
	s.bridge.requestHostTimeout(s.handleTimeout, d)
}

func (s *Scheduler) cancelHostTimeout() {
	if s.hostTimeoutScheduled {
		s.hostTimeoutScheduled = false
		s.bridge.cancelHostTimeout()
	}
}
