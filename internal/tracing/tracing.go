// Package tracing turns scheduler passes into OpenTelemetry spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"coopsched/internal/sched"
)

const instrumentationName = "coopsched"

// Tracer returns the tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Observer is a sched.Observer that opens one span per work loop pass and
// records what happened to each task as span events.
type Observer struct {
	tracer trace.Tracer
	span   trace.Span
}

// NewObserver creates an Observer. A nil tracer means Tracer().
func NewObserver(tracer trace.Tracer) *Observer {
	if tracer == nil {
		tracer = Tracer()
	}
	return &Observer{tracer: tracer}
}

// Observe implements sched.Observer.
func (o *Observer) Observe(ev sched.Event) {
	if ev.Kind == sched.EventPassStart {
		_, o.span = o.tracer.Start(context.Background(), "sched.pass")
		return
	}
	if o.span == nil {
		// outside a pass: scheduling and cancelling from host code
		return
	}

	switch ev.Kind {
	case sched.EventPassEnd:
		o.span.SetAttributes(attribute.Bool("sched.more_pending", ev.MorePending))
		o.span.End()
		o.span = nil
	case sched.EventError:
		o.span.RecordError(ev.Err, trace.WithAttributes(taskAttrs(ev)...))
		o.span.SetStatus(codes.Error, ev.Err.Error())
	case sched.EventRun:
		attrs := append(taskAttrs(ev), attribute.Bool("task.did_timeout", ev.DidTimeout))
		o.span.AddEvent("task.run", trace.WithAttributes(attrs...))
	default:
		o.span.AddEvent("task."+eventName(ev.Kind), trace.WithAttributes(taskAttrs(ev)...))
	}
}

func taskAttrs(ev sched.Event) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64("task.id", int64(ev.TaskID)),
		attribute.String("task.priority", ev.Priority.String()),
	}
}

func eventName(k sched.EventKind) string {
	switch k {
	case sched.EventSchedule:
		return "schedule"
	case sched.EventPromote:
		return "promote"
	case sched.EventContinue:
		return "continue"
	case sched.EventComplete:
		return "complete"
	case sched.EventCancel:
		return "cancel"
	case sched.EventYield:
		return "yield"
	default:
		return "unknown"
	}
}
