package sched_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coopsched/internal/host"
	"coopsched/internal/sched"
)

const ms = time.Millisecond

func newScheduler(t *testing.T, start time.Duration, opts ...sched.Option) (*sched.Scheduler, *host.Virtual) {
	t.Helper()

	vh := host.NewVirtual(start)
	base := []sched.Option{
		sched.WithClock(vh),
		sched.WithLogger(slog.New(slog.DiscardHandler)),
	}
	return sched.New(vh, append(base, opts...)...), vh
}

// record returns a callback that appends name to log and finishes.
func record(log *[]string, name string) sched.Callback {
	return func(bool) (sched.Result, error) {
		*log = append(*log, name)
		return sched.Done(), nil
	}
}

func TestScheduler_PriorityTimeouts(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		priority sched.Priority
		want     sched.Priority
		timeout  time.Duration
	}{
		"immediate":                    {sched.Immediate, sched.Immediate, -1 * ms},
		"user blocking":                {sched.UserBlocking, sched.UserBlocking, 250 * ms},
		"normal":                       {sched.Normal, sched.Normal, 5000 * ms},
		"low":                          {sched.Low, sched.Low, 10000 * ms},
		"idle":                         {sched.Idle, sched.Idle, 1073741823 * ms},
		"invalid falls back to normal": {sched.Priority(42), sched.Normal, 5000 * ms},
		"none falls back to normal":    {sched.NoPriority, sched.Normal, 5000 * ms},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, _ := newScheduler(t, 1000*ms)
			task := s.Schedule(tt.priority, record(new([]string), name))

			assert.Equal(t, tt.want, task.Priority())
			assert.Equal(t, 1000*ms, task.StartTime())
			assert.Equal(t, tt.timeout, task.ExpirationTime()-task.StartTime())
		})
	}
}

func TestScheduler_ImmediateIsAlreadyExpired(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var didTimeout bool
	task := s.Schedule(sched.Immediate, func(timedOut bool) (sched.Result, error) {
		didTimeout = timedOut
		return sched.Done(), nil
	})
	assert.LessOrEqual(t, task.ExpirationTime(), task.StartTime())

	vh.RunPosted(0)
	assert.True(t, didTimeout)
}

func TestScheduler_RunsByExpiration(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	s.Schedule(sched.Idle, record(&got, "A"))
	s.Schedule(sched.Immediate, record(&got, "B"))
	s.Schedule(sched.Normal, record(&got, "C"))

	vh.RunPosted(0)

	assert.Equal(t, []string{"B", "C", "A"}, got)
	assert.Zero(t, s.ReadyLen())
	assert.Nil(t, s.FirstTask())
}

func TestScheduler_FIFOAmongEqualPriority(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	for _, name := range []string{"first", "second", "third", "fourth"} {
		s.Schedule(sched.Normal, record(&got, name))
	}
	vh.RunPosted(0)

	assert.Equal(t, []string{"first", "second", "third", "fourth"}, got)
}

func TestScheduler_TaskIDsIncrease(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler(t, 0)

	a := s.Schedule(sched.Normal, record(new([]string), "a"))
	b := s.Schedule(sched.Low, record(new([]string), "b"), sched.Delay(10*ms))
	c := s.Schedule(sched.Idle, record(new([]string), "c"))

	assert.Less(t, a.ID(), b.ID())
	assert.Less(t, b.ID(), c.ID())
}

func TestScheduler_Delay(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 1000*ms)

	var got []string
	task := s.Schedule(sched.Normal, record(&got, "delayed"), sched.Delay(100*ms))

	assert.Equal(t, 1100*ms, task.StartTime())
	assert.Equal(t, 6100*ms, task.ExpirationTime())
	assert.Equal(t, 1, s.DelayedLen())
	assert.Zero(t, s.ReadyLen())
	assert.Nil(t, s.FirstTask())
	assert.Zero(t, vh.PendingPosts(), "no host turn for delayed-only work")
	assert.Equal(t, 1, vh.PendingTimers())

	vh.Advance(99 * ms)
	assert.Zero(t, s.ReadyLen())
	vh.RunPosted(0)
	assert.Empty(t, got)

	vh.Advance(1 * ms)
	assert.Equal(t, 1, s.ReadyLen())
	assert.Same(t, task, s.FirstTask())

	vh.RunPosted(0)
	assert.Equal(t, []string{"delayed"}, got)
}

func TestScheduler_TaskTimingIsFixed(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var seen []time.Duration
	var task *sched.Task
	task = s.Schedule(sched.Priority(99), func(bool) (sched.Result, error) {
		seen = append(seen, task.StartTime(), task.ExpirationTime())
		return sched.Done(), nil
	}, sched.Delay(20*ms))

	id := task.ID()
	vh.Advance(20 * ms)
	vh.RunPosted(0)

	// Promotion and execution read the timing but never rewrite it.
	assert.Equal(t, []time.Duration{20 * ms, 5020 * ms}, seen)
	assert.Equal(t, 20*ms, task.StartTime())
	assert.Equal(t, 5020*ms, task.ExpirationTime())
	assert.Equal(t, sched.Normal, task.Priority())
	assert.Equal(t, id, task.ID())
}

func TestScheduler_NonPositiveDelayIsIgnored(t *testing.T) {
	t.Parallel()

	s, _ := newScheduler(t, 10*ms)

	task := s.Schedule(sched.Normal, record(new([]string), "x"), sched.Delay(-5*ms))

	assert.Equal(t, 10*ms, task.StartTime())
	assert.Equal(t, 1, s.ReadyLen())
}

func TestScheduler_DelayedTaskRunsExactlyOnce(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	runs := 0
	s.Schedule(sched.Normal, func(bool) (sched.Result, error) {
		runs++
		return sched.Done(), nil
	}, sched.Delay(50*ms))

	// Run a pass at 10ms by submitting unrelated ready work.
	vh.Set(10 * ms)
	var got []string
	s.Schedule(sched.Normal, record(&got, "ready"))
	vh.RunPosted(0)

	require.Equal(t, []string{"ready"}, got)
	assert.Zero(t, runs)

	vh.Advance(50 * ms)
	vh.RunPosted(0)
	assert.Equal(t, 1, runs)

	vh.Advance(time.Second)
	vh.RunPosted(0)
	assert.Equal(t, 1, runs)
	assert.Zero(t, vh.PendingTimers())
}

func TestScheduler_DelayedTasksPromoteInStartOrder(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	s.Schedule(sched.Normal, record(&got, "late"), sched.Delay(30*ms))
	s.Schedule(sched.Normal, record(&got, "early"), sched.Delay(10*ms))
	s.Schedule(sched.Normal, record(&got, "middle"), sched.Delay(20*ms))

	vh.Advance(100 * ms)
	vh.RunPosted(0)

	// All three were promoted by the time they ran; ready order is by
	// expiration, which follows start time at equal priority.
	assert.Equal(t, []string{"early", "middle", "late"}, got)
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("before it runs", func(t *testing.T) {
		t.Parallel()

		s, vh := newScheduler(t, 0)

		var got []string
		a := s.Schedule(sched.Normal, record(&got, "a"))
		s.Schedule(sched.Normal, record(&got, "b"))

		s.Cancel(a)
		assert.True(t, a.Cancelled())
		assert.Equal(t, 2, s.ReadyLen(), "cancellation does not remove the heap entry")

		vh.RunPosted(0)
		assert.Equal(t, []string{"b"}, got)
		assert.Zero(t, s.ReadyLen())
	})

	t.Run("twice and after completion", func(t *testing.T) {
		t.Parallel()

		s, vh := newScheduler(t, 0)

		var got []string
		a := s.Schedule(sched.Normal, record(&got, "a"))
		vh.RunPosted(0)
		require.Equal(t, []string{"a"}, got)

		assert.NotPanics(t, func() {
			s.Cancel(a)
			s.Cancel(a)
			s.Cancel(nil)
		})
		assert.Zero(t, s.ReadyLen())
	})

	t.Run("delayed task is discarded on promotion", func(t *testing.T) {
		t.Parallel()

		s, vh := newScheduler(t, 0)

		var got []string
		a := s.Schedule(sched.Normal, record(&got, "a"), sched.Delay(10*ms))
		s.Cancel(a)

		vh.Advance(20 * ms)
		vh.RunPosted(0)

		assert.Empty(t, got)
		assert.Zero(t, s.DelayedLen())
		assert.Zero(t, s.ReadyLen())
	})
}

func TestScheduler_Continuation(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	chunks := 0
	var work sched.Callback
	work = func(bool) (sched.Result, error) {
		chunks++
		vh.Sleep(3 * ms)
		if chunks < 3 {
			return sched.Continue(work), nil
		}
		return sched.Done(), nil
	}
	task := s.Schedule(sched.Normal, work)

	// The first turn runs two chunks before the 5ms budget runs out.
	require.Equal(t, 1, vh.RunPosted(1))
	assert.Equal(t, 2, chunks)
	assert.Same(t, task, s.FirstTask(), "a continued task stays at the head")
	assert.False(t, task.Cancelled())
	assert.Equal(t, 1, vh.PendingPosts(), "the bridge asked for another turn")

	vh.RunPosted(0)
	assert.Equal(t, 3, chunks)
	assert.True(t, task.Cancelled())
	assert.Nil(t, s.FirstTask())
	assert.Zero(t, vh.PendingPosts())
}

func TestScheduler_ShouldYield(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 100*ms)

	var observed []bool
	s.Schedule(sched.Normal, func(bool) (sched.Result, error) {
		observed = append(observed, s.ShouldYield())
		vh.Sleep(4 * ms)
		observed = append(observed, s.ShouldYield())
		vh.Sleep(999 * time.Microsecond)
		observed = append(observed, s.ShouldYield())
		vh.Sleep(1 * time.Microsecond)
		observed = append(observed, s.ShouldYield())
		return sched.Done(), nil
	})
	vh.RunPosted(0)

	assert.Equal(t, []bool{false, false, false, true}, observed)
}

func TestScheduler_ExpiredTasksIgnoreYield(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	timeouts := map[string]bool{}
	named := func(name string, cost time.Duration) sched.Callback {
		return func(didTimeout bool) (sched.Result, error) {
			got = append(got, name)
			timeouts[name] = didTimeout
			vh.Sleep(cost)
			return sched.Done(), nil
		}
	}

	s.Schedule(sched.UserBlocking, named("slow", 300*ms))
	s.Schedule(sched.UserBlocking, named("overdue", 0))
	s.Schedule(sched.Normal, named("normal", 0))

	// One turn: "overdue" has expired by the time "slow" returns, so it runs
	// despite the exhausted budget; "normal" has not and waits.
	vh.RunPosted(1)
	assert.Equal(t, []string{"slow", "overdue"}, got)
	assert.False(t, timeouts["slow"])
	assert.True(t, timeouts["overdue"])

	vh.RunPosted(0)
	assert.Equal(t, []string{"slow", "overdue", "normal"}, got)
	assert.False(t, timeouts["normal"])
}

func TestScheduler_LongTaskMakesTimersDue(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	s.Schedule(sched.Normal, func(bool) (sched.Result, error) {
		got = append(got, "long")
		vh.Sleep(100 * ms)
		return sched.Done(), nil
	})
	s.Schedule(sched.Normal, record(&got, "timer"), sched.Delay(50*ms))

	vh.RunPosted(0)

	assert.Equal(t, []string{"long", "timer"}, got)
	assert.Zero(t, s.DelayedLen())
}

func TestScheduler_ReadyWorkReplacesPendingWakeup(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	s.Schedule(sched.Normal, record(&got, "delayed"), sched.Delay(40*ms))
	require.Equal(t, 1, vh.PendingTimers())

	s.Schedule(sched.Normal, record(&got, "now"))
	assert.Zero(t, vh.PendingTimers(), "ready work cancels the deferred wake-up")
	assert.Equal(t, 1, vh.PendingPosts())

	vh.RunPosted(0)
	assert.Equal(t, []string{"now"}, got)

	next, ok := vh.NextTimer()
	require.True(t, ok, "the drained pass re-arms a wake-up for the delayed task")
	assert.Equal(t, 40*ms, next)

	vh.Advance(40 * ms)
	vh.RunPosted(0)
	assert.Equal(t, []string{"now", "delayed"}, got)
}

func TestScheduler_EarlierTimerReplacesWakeup(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	s.Schedule(sched.Normal, record(new([]string), "late"), sched.Delay(100*ms))
	s.Schedule(sched.Normal, record(new([]string), "soon"), sched.Delay(10*ms))

	assert.Equal(t, 1, vh.PendingTimers())
	next, _ := vh.NextTimer()
	assert.Equal(t, 10*ms, next)
}

func TestScheduler_NoDuplicateHostRequests(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	var postsDuringWork int
	s.Schedule(sched.Normal, func(bool) (sched.Result, error) {
		got = append(got, "outer")
		s.Schedule(sched.Immediate, record(&got, "nested-immediate"))
		s.Schedule(sched.Low, record(&got, "nested-low"))
		postsDuringWork = vh.PendingPosts()
		return sched.Done(), nil
	})
	s.Schedule(sched.Normal, record(&got, "sibling"))
	assert.Equal(t, 1, vh.PendingPosts())

	vh.RunPosted(0)

	assert.Zero(t, postsDuringWork)
	assert.Equal(t, []string{"outer", "nested-immediate", "sibling", "nested-low"}, got)
	assert.Zero(t, s.ReadyLen())
}

var errBoom = errors.New("boom")

func TestScheduler_CallbackError(t *testing.T) {
	t.Parallel()

	var reported []error
	s, vh := newScheduler(t, 0, sched.WithErrorHandler(func(err error) {
		reported = append(reported, err)
	}))

	var got []string
	runs := 0
	failing := s.Schedule(sched.UserBlocking, func(bool) (sched.Result, error) {
		runs++
		return sched.Done(), errBoom
	})
	s.Schedule(sched.Normal, record(&got, "after"))

	vh.RunPosted(0)

	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], errBoom)
	assert.Contains(t, reported[0].Error(), "task 1")
	assert.Equal(t, 1, runs, "a failing task is not retried")
	assert.True(t, failing.Cancelled())
	assert.Equal(t, []string{"after"}, got)
	assert.Equal(t, sched.Normal, s.CurrentPriority())
	assert.Zero(t, s.ReadyLen())
}

func TestScheduler_CallbackPanic(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	runs := 0
	s.Schedule(sched.Immediate, func(bool) (sched.Result, error) {
		runs++
		panic("kaboom")
	})
	s.Schedule(sched.Normal, record(&got, "after"))

	assert.PanicsWithValue(t, "kaboom", func() { vh.RunPosted(0) })
	assert.Equal(t, sched.Normal, s.CurrentPriority())
	assert.Equal(t, 1, s.ReadyLen(), "the panicking task was dropped")

	// The bridge queued another turn before the panic escaped.
	vh.RunPosted(0)
	assert.Equal(t, 1, runs)
	assert.Equal(t, []string{"after"}, got)

	s.Schedule(sched.Normal, record(&got, "later"))
	vh.RunPosted(0)
	assert.Equal(t, []string{"after", "later"}, got)
}

func TestScheduler_PauseResume(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)

	var got []string
	s.Pause()
	assert.True(t, s.Paused())
	s.Schedule(sched.Normal, record(&got, "a"))
	vh.RunPosted(0)

	assert.Empty(t, got)
	assert.Equal(t, 1, s.ReadyLen())
	assert.Zero(t, vh.PendingPosts(), "a paused scheduler does not spin")

	s.Resume()
	vh.RunPosted(0)
	assert.Equal(t, []string{"a"}, got)
}

func TestScheduler_SetFrameRate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		fps     int
		want    time.Duration
		wantErr error
	}{
		"60 fps":            {fps: 60, want: 16 * ms},
		"125 fps":           {fps: 125, want: 8 * ms},
		"1 fps":             {fps: 1, want: 1000 * ms},
		"zero resets":       {fps: 0, want: 5 * ms},
		"above 125":         {fps: 126, want: 10 * ms, wantErr: sched.ErrInvalidFrameRate},
		"negative rejected": {fps: -1, want: 10 * ms, wantErr: sched.ErrInvalidFrameRate},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, _ := newScheduler(t, 0, sched.WithFrameInterval(5*ms))
			require.NoError(t, s.SetFrameRate(100))
			require.Equal(t, 10*ms, s.FrameInterval())

			err := s.SetFrameRate(tt.fps)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, s.FrameInterval())
		})
	}
}

func TestScheduler_FrameRateChangesYieldBudget(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)
	require.NoError(t, s.SetFrameRate(50))

	var observed []bool
	s.Schedule(sched.Normal, func(bool) (sched.Result, error) {
		vh.Sleep(19 * ms)
		observed = append(observed, s.ShouldYield())
		vh.Sleep(1 * ms)
		observed = append(observed, s.ShouldYield())
		return sched.Done(), nil
	})
	vh.RunPosted(0)

	assert.Equal(t, []bool{false, true}, observed)
}

func TestScheduler_RequestPaintIsNoop(t *testing.T) {
	t.Parallel()

	s, vh := newScheduler(t, 0)
	s.RequestPaint()

	assert.Zero(t, vh.PendingPosts())
	assert.Zero(t, vh.PendingTimers())
}

func BenchmarkScheduler_Throughput(b *testing.B) {
	vh := host.NewVirtual(0)
	s := sched.New(vh, sched.WithClock(vh), sched.WithLogger(slog.New(slog.DiscardHandler)))

	noop := func(bool) (sched.Result, error) { return sched.Done(), nil }
	priorities := []sched.Priority{sched.Immediate, sched.UserBlocking, sched.Normal, sched.Low, sched.Idle}

	b.ReportAllocs()
	b.ResetTimer()

	for i := range b.N {
		s.Schedule(priorities[i%len(priorities)], noop)
		if i%1000 == 999 {
			vh.RunPosted(0)
		}
	}
	vh.RunPosted(0)
}
