// Package metrics exports scheduler events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"coopsched/internal/sched"
)

const namespace = "coopsched"

// Collector is a sched.Observer that records task and pass metrics.
type Collector struct {
	TasksScheduled   *prometheus.CounterVec
	TasksCompleted   *prometheus.CounterVec
	TasksCancelled   *prometheus.CounterVec
	TasksTimedOut    *prometheus.CounterVec
	TaskErrors       prometheus.Counter
	Continuations    prometheus.Counter
	Promotions       prometheus.Counter
	Yields           prometheus.Counter
	Passes           *prometheus.CounterVec
	PassDuration     prometheus.Histogram
	TasksOutstanding prometheus.Gauge

	passStart time.Duration
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		TasksScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_scheduled_total",
				Help:      "Total number of scheduled tasks.",
			},
			[]string{"priority"},
		),
		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks whose callback finished without a continuation.",
			},
			[]string{"priority"},
		),
		TasksCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_cancelled_total",
				Help:      "Total number of cancelled tasks.",
			},
			[]string{"priority"},
		),
		TasksTimedOut: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_runs_timed_out_total",
				Help:      "Total number of callback invocations made after the task expired.",
			},
			[]string{"priority"},
		),
		TaskErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_errors_total",
				Help:      "Total number of failed callbacks.",
			},
		),
		Continuations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "continuations_total",
				Help:      "Total number of callbacks that returned a continuation.",
			},
		),
		Promotions: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotions_total",
				Help:      "Total number of delayed tasks moved to the ready queue.",
			},
		),
		Yields: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "yields_total",
				Help:      "Total number of passes that stopped early to yield to the host.",
			},
		),
		Passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "passes_total",
				Help:      "Total number of work loop passes by outcome.",
			},
			[]string{"outcome"},
		),
		PassDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pass_duration_seconds",
				Help:      "Duration of work loop passes in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
			},
		),
		TasksOutstanding: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_outstanding",
				Help:      "Number of tasks scheduled but not yet completed, cancelled or failed.",
			},
		),
	}
}

// Observe implements sched.Observer.
func (c *Collector) Observe(ev sched.Event) {
	priority := ev.Priority.String()

	switch ev.Kind {
	case sched.EventSchedule:
		c.TasksScheduled.WithLabelValues(priority).Inc()
		c.TasksOutstanding.Inc()
	case sched.EventPromote:
		c.Promotions.Inc()
	case sched.EventRun:
		if ev.DidTimeout {
			c.TasksTimedOut.WithLabelValues(priority).Inc()
		}
	case sched.EventContinue:
		c.Continuations.Inc()
	case sched.EventComplete:
		c.TasksCompleted.WithLabelValues(priority).Inc()
		c.TasksOutstanding.Dec()
	case sched.EventCancel:
		c.TasksCancelled.WithLabelValues(priority).Inc()
		c.TasksOutstanding.Dec()
	case sched.EventError:
		c.TaskErrors.Inc()
		c.TasksOutstanding.Dec()
	case sched.EventYield:
		c.Yields.Inc()
	case sched.EventPassStart:
		c.passStart = ev.Time
	case sched.EventPassEnd:
		outcome := "drained"
		if ev.MorePending {
			outcome = "pending"
		}
		c.Passes.WithLabelValues(outcome).Inc()
		c.PassDuration.Observe((ev.Time - c.passStart).Seconds())
	}
}
