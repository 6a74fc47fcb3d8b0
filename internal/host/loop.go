package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/emirpasic/gods/trees/redblacktree"
)

// Posting selects how Loop.Post delivers work.
type Posting int

const (
	// PostImmediate runs posted functions from a dedicated queue. Functions
	// posted while the loop is busy run after the timers that are due.
	PostImmediate Posting = iota

	// PostTimer runs posted functions as zero-delay timers. This is the
	// fallback for substrates without an immediate queue.
	PostTimer
)

func (p Posting) String() string {
	switch p {
	case PostImmediate:
		return "immediate"
	case PostTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// ParsePosting maps a config string to a Posting. Unknown values fall back
// to PostImmediate.
func ParsePosting(s string) Posting {
	if s == "timer" {
		return PostTimer
	}
	return PostImmediate
}

// Loop is a single-goroutine event loop. Functions posted to it, and timers
// armed on it, all run on the goroutine that called Run. Post and AfterFunc
// are safe to call from any goroutine.
type Loop struct {
	// mu protects the queues and the timer sequence.
	mu        sync.Mutex
	immediate *linkedlistqueue.Queue // posted functions, FIFO
	timers    *redblacktree.Tree     // timerKey -> *loopTimer
	seq       uint64

	wake    chan struct{} // nudges a sleeping Run
	running atomic.Bool

	origin  time.Time
	posting Posting
	onError func(error)
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithPosting selects the delivery mechanism used by Post.
func WithPosting(p Posting) LoopOption {
	return func(l *Loop) {
		l.posting = p
	}
}

// WithErrorHandler sets the function that receives panics recovered from
// posted functions and timers. The default logs them with slog.
func WithErrorHandler(fn func(error)) LoopOption {
	return func(l *Loop) {
		l.onError = fn
	}
}

// NewLoop creates an idle Loop. Call Run to start processing.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		immediate: linkedlistqueue.New(),
		timers:    redblacktree.NewWith(cmpTimerKey),
		wake:      make(chan struct{}, 1),
		origin:    time.Now(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.onError == nil {
		l.onError = func(err error) {
			slog.Error("host loop recovered panic", "component", "host", "error", err)
		}
	}
	return l
}

// Now returns the monotonic time elapsed since the loop was created.
func (l *Loop) Now() time.Duration {
	return time.Since(l.origin)
}

// Posting reports the delivery mechanism in use.
func (l *Loop) Posting() Posting { return l.posting }

// Post queues fn to run on the loop goroutine.
func (l *Loop) Post(fn func()) {
	if l.posting == PostTimer {
		l.AfterFunc(0, fn)
		return
	}

	l.mu.Lock()
	l.immediate.Enqueue(fn)
	l.mu.Unlock()
	l.notify()
}

// AfterFunc arms a one-shot timer on the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}

	l.mu.Lock()
	t := &loopTimer{
		loop: l,
		key:  timerKey{due: l.Now() + d, seq: l.seq},
		fn:   fn,
	}
	l.seq++
	l.timers.Put(t.key, t)
	l.mu.Unlock()

	l.notify()
	return t
}

// Pending returns the number of queued posted functions and armed timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.immediate.Size() + l.timers.Size()
}

// Run processes posted functions and timers until ctx is cancelled.
//
// Each iteration runs the functions that were posted before it started, then
// every timer that was due when they finished. Work posted during an
// iteration waits for the next one, so a function that keeps re-posting
// itself cannot keep timers from firing.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	for {
		// 1) check shutdown
		if err := ctx.Err(); err != nil {
			return err
		}

		// 2) run what was posted before this iteration
		for n := l.postedLen(); n > 0; n-- {
			fn := l.nextPosted()
			if fn == nil {
				break
			}
			l.invoke(fn)
		}

		// 3) fire the timers that are due now; ones armed from here on wait
		// for the next iteration
		cutoff := l.Now()
		seq := l.timerSeq()
		for {
			fn := l.nextDue(cutoff, seq)
			if fn == nil {
				break
			}
			l.invoke(fn)
		}

		// 4) nothing ready: sleep until woken or the next timer is due
		wait := l.wait()
		if wait == 0 {
			continue
		}

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		if wait > 0 {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
		case <-l.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (l *Loop) postedLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.immediate.Size()
}

func (l *Loop) nextPosted() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.immediate.Dequeue(); ok {
		return v.(func())
	}
	return nil
}

func (l *Loop) timerSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// nextDue pops the earliest timer if it was due by cutoff and armed before
// sequence number seq.
func (l *Loop) nextDue(cutoff time.Duration, seq uint64) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := l.timers.Left()
	if node == nil {
		return nil
	}
	t := node.Value.(*loopTimer)
	if t.key.due > cutoff || t.key.seq >= seq {
		return nil
	}
	l.timers.Remove(t.key)
	return t.fn
}

// wait returns how long Run may sleep: 0 when work is runnable now, the time
// until the earliest timer otherwise, or -1 when there is nothing at all.
func (l *Loop) wait() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.immediate.Size() > 0 {
		return 0
	}
	node := l.timers.Left()
	if node == nil {
		return -1
	}
	return max(node.Key.(timerKey).due-l.Now(), 0)
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.onError(fmt.Errorf("%w: %v", ErrPanic, r))
		}
	}()
	fn()
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type loopTimer struct {
	loop *Loop
	key  timerKey
	fn   func()
}

func (t *loopTimer) Stop() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()

	if _, found := t.loop.timers.Get(t.key); !found {
		return false
	}
	t.loop.timers.Remove(t.key)
	return true
}
