package host

import (
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// DefaultRunLimit bounds RunPosted when no explicit limit is given, so a
// task that continues forever under a frozen clock cannot hang a test.
const DefaultRunLimit = 10000

// Virtual is a deterministic Host driven entirely by its caller. Time only
// moves when Set, Sleep or Advance is called, and posted functions only run
// from RunPosted. It is not safe for concurrent use.
type Virtual struct {
	now    time.Duration
	posted *linkedlistqueue.Queue
	timers *redblacktree.Tree // timerKey -> *virtualTimer
	seq    uint64
}

// NewVirtual returns a Virtual host whose clock reads start.
func NewVirtual(start time.Duration) *Virtual {
	return &Virtual{
		now:    start,
		posted: linkedlistqueue.New(),
		timers: redblacktree.NewWith(cmpTimerKey),
	}
}

// Now returns the virtual time.
func (v *Virtual) Now() time.Duration { return v.now }

// Set moves the clock to t. The clock never runs backwards, so earlier values
// are ignored. Timers are not fired.
func (v *Virtual) Set(t time.Duration) {
	if t > v.now {
		v.now = t
	}
}

// Sleep moves the clock forward by d without firing timers. Callbacks use it
// to simulate work that takes time.
func (v *Virtual) Sleep(d time.Duration) {
	v.Set(v.now + d)
}

// Post queues fn. It runs on the next RunPosted call.
func (v *Virtual) Post(fn func()) {
	v.posted.Enqueue(fn)
}

// AfterFunc arms a timer that fires during Advance once the clock reaches
// now+d.
func (v *Virtual) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	t := &virtualTimer{
		host: v,
		key:  timerKey{due: v.now + d, seq: v.seq},
		fn:   fn,
	}
	v.seq++
	v.timers.Put(t.key, t)
	return t
}

// PendingPosts returns the number of queued posted functions.
func (v *Virtual) PendingPosts() int { return v.posted.Size() }

// PendingTimers returns the number of armed timers.
func (v *Virtual) PendingTimers() int { return v.timers.Size() }

// NextTimer returns the due time of the earliest armed timer.
func (v *Virtual) NextTimer() (time.Duration, bool) {
	node := v.timers.Left()
	if node == nil {
		return 0, false
	}
	return node.Key.(timerKey).due, true
}

// RunPosted runs queued functions in FIFO order, including ones they post,
// until the queue is empty or limit functions have run. A limit <= 0 means
// DefaultRunLimit. It returns the number of functions run.
func (v *Virtual) RunPosted(limit int) int {
	if limit <= 0 {
		limit = DefaultRunLimit
	}

	ran := 0
	for ran < limit {
		fn, ok := v.posted.Dequeue()
		if !ok {
			break
		}
		ran++
		fn.(func())()
	}
	return ran
}

// Advance moves the clock forward by d, firing every timer that falls due on
// the way at its own due time. Posted functions are left queued.
func (v *Virtual) Advance(d time.Duration) {
	target := v.now + d
	for {
		node := v.timers.Left()
		if node == nil {
			break
		}
		t := node.Value.(*virtualTimer)
		if t.key.due > target {
			break
		}
		v.timers.Remove(t.key)
		v.Set(t.key.due)
		t.fn()
	}
	v.Set(target)
}

type virtualTimer struct {
	host *Virtual
	key  timerKey
	fn   func()
}

func (t *virtualTimer) Stop() bool {
	if _, found := t.host.timers.Get(t.key); !found {
		return false
	}
	t.host.timers.Remove(t.key)
	return true
}
