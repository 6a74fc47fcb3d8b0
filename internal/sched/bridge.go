package sched

import (
	"time"

	"coopsched/internal/host"
)

// hostCallback is the work the bridge runs on each host turn. It reports
// whether another turn is needed.
type hostCallback func(hasTimeRemaining bool, initialTime time.Duration) (bool, error)

// hostBridge asks the host for turns on the scheduler's behalf. At most one
// turn request is outstanding at a time; while the callback keeps reporting
// more work, the bridge re-posts itself after every turn so the host gets
// control back in between.
type hostBridge struct {
	host  host.Host
	clock Clock

	scheduledCallback  hostCallback
	messageLoopRunning bool
	timeout            host.Timer

	// turnStart is when the current host turn began; ShouldYield measures
	// from it.
	turnStart       time.Duration
	frameInterval   time.Duration
	defaultInterval time.Duration

	onError func(error)
}

func (b *hostBridge) requestHostCallback(cb hostCallback) {
	b.scheduledCallback = cb
	if !b.messageLoopRunning {
		b.messageLoopRunning = true
		b.host.Post(b.performWorkUntilDeadline)
	}
}

func (b *hostBridge) performWorkUntilDeadline() {
	if b.scheduledCallback == nil {
		b.messageLoopRunning = false
		return
	}

	currentTime := b.clock.Now()
	b.turnStart = currentTime

	// If the callback panics, keep the loop going on a fresh turn so the
	// rest of the queue still gets a chance, then let the panic reach the
	// host.
	hasMoreWork := true
	defer func() {
		if hasMoreWork {
			b.host.Post(b.performWorkUntilDeadline)
		} else {
			b.messageLoopRunning = false
			b.scheduledCallback = nil
		}
	}()

	more, err := b.scheduledCallback(true, currentTime)
	hasMoreWork = more
	if err != nil {
		b.onError(err)
	}
}

func (b *hostBridge) requestHostTimeout(fn func(currentTime time.Duration), d time.Duration) {
	b.cancelHostTimeout()
	b.timeout = b.host.AfterFunc(d, func() {
		b.timeout = nil
		fn(b.clock.Now())
	})
}

func (b *hostBridge) cancelHostTimeout() {
	if b.timeout != nil {
		b.timeout.Stop()
		b.timeout = nil
	}
}

func (b *hostBridge) shouldYield() bool {
	return b.clock.Now()-b.turnStart >= b.frameInterval
}

func (b *hostBridge) forceFrameRate(fps int) error {
	if fps < 0 || fps > 125 {
		return ErrInvalidFrameRate
	}
	if fps > 0 {
		b.frameInterval = time.Duration(1000/fps) * time.Millisecond
	} else {
		b.frameInterval = b.defaultInterval
	}
	return nil
}
