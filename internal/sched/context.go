package sched

// CurrentPriority returns the priority of the running task, or of the
// innermost RunAt, RunAtNext or wrapped call. Outside of all of them it is
// Normal.
func (s *Scheduler) CurrentPriority() Priority {
	return s.currentPriority
}

// RunAt calls fn with the current priority set to p, restoring the previous
// priority afterwards even if fn panics. Invalid priorities are treated as
// Normal.
func (s *Scheduler) RunAt(p Priority, fn func() error) error {
	return s.runWithPriority(p.Normalize(), fn)
}

// RunAtNext calls fn at Normal when the current priority is Normal or more
// urgent, and at the current priority otherwise. Follow-up work run through it
// does not inherit an elevated priority.
func (s *Scheduler) RunAtNext(fn func() error) error {
	p := s.currentPriority
	switch p {
	case Immediate, UserBlocking, Normal:
		p = Normal
	}
	return s.runWithPriority(p, fn)
}

// Wrap captures the current priority and returns a function that runs fn at
// that priority whenever it is called, whatever the priority is by then.
func (s *Scheduler) Wrap(fn func() error) func() error {
	parent := s.currentPriority
	return func() error {
		return s.runWithPriority(parent, fn)
	}
}

func (s *Scheduler) runWithPriority(p Priority, fn func() error) error {
	previous := s.currentPriority
	s.currentPriority = p
	defer func() {
		s.currentPriority = previous
	}()
	return fn()
}
