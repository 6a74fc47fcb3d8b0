// internal/sched/event.go

package sched

import (
	"time"
)

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventSchedule  EventKind = iota // task accepted into a queue
	EventPromote                    // delayed task moved to the ready queue
	EventRun                        // callback about to be invoked
	EventContinue                   // callback returned a continuation
	EventComplete                   // callback finished the task
	EventCancel                     // task cancelled
	EventError                      // callback failed
	EventPassStart                  // work loop pass started
	EventPassEnd                    // work loop pass finished
	EventYield                      // pass stopped early to give the host control
)

// Event is emitted synchronously, on the scheduler's goroutine, whenever the
// scheduler changes state.
type Event struct {
	Time        time.Duration // scheduler clock
	Kind        EventKind
	TaskID      TaskID
	Priority    Priority
	DidTimeout  bool
	MorePending bool  // set on EventPassEnd
	Err         error // set on EventError
}

func (ek EventKind) String() string {
	switch ek {
	case EventSchedule:
		return "Schedule"
	case EventPromote:
		return "Promote"
	case EventRun:
		return "Run"
	case EventContinue:
		return "Continue"
	case EventComplete:
		return "Complete"
	case EventCancel:
		return "Cancel"
	case EventError:
		return "Error"
	case EventPassStart:
		return "PassStart"
	case EventPassEnd:
		return "PassEnd"
	case EventYield:
		return "Yield"
	default:
		return "Unknown"
	}
}

// Observer receives scheduler events. Implementations must not block; they
// run inline with the work loop.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

func (s *Scheduler) emit(ev Event) {
	if len(s.observers) == 0 {
		return
	}
	ev.Time = s.clock.Now()
	for _, o := range s.observers {
		o.Observe(ev)
	}
}

func (s *Scheduler) emitTask(kind EventKind, t *Task) {
	s.emit(Event{Kind: kind, TaskID: t.id, Priority: t.priority})
}
