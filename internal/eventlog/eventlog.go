// Package eventlog writes scheduler events as CSV records or console lines.
package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"coopsched/internal/sched"
)

var header = []string{"run_id", "time_ms", "event", "task_id", "priority", "did_timeout", "more_pending", "error"}

// CSV is a sched.Observer that appends one CSV record per event. Every
// record carries the run id, so logs of several runs can share a file.
type CSV struct {
	w      *csv.Writer
	closer io.Closer
	runID  string
	err    error
}

// Create opens path for CSV logging of events, truncating it.
func Create(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	l := NewCSV(f)
	l.closer = f
	return l, l.err
}

// NewCSV writes the header to w and returns a CSV logger writing to it.
func NewCSV(w io.Writer) *CSV {
	l := &CSV{
		w:     csv.NewWriter(w),
		runID: uuid.NewString(),
	}
	l.write(header)
	return l
}

// RunID returns the id stamped on every record.
func (l *CSV) RunID() string { return l.runID }

// Observe implements sched.Observer.
func (l *CSV) Observe(ev sched.Event) {
	errText := ""
	if ev.Err != nil {
		errText = ev.Err.Error()
	}
	l.write([]string{
		l.runID,
		strconv.FormatFloat(float64(ev.Time.Microseconds())/1000, 'f', 3, 64),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		ev.Priority.String(),
		strconv.FormatBool(ev.DidTimeout),
		strconv.FormatBool(ev.MorePending),
		errText,
	})
}

// Err returns the first write error, if any.
func (l *CSV) Err() error { return l.err }

// Close flushes buffered records and closes the underlying file, if the
// logger opened one.
func (l *CSV) Close() error {
	l.w.Flush()
	if err := l.w.Error(); err != nil && l.err == nil {
		l.err = err
	}
	if l.closer != nil {
		if err := l.closer.Close(); err != nil && l.err == nil {
			l.err = err
		}
	}
	return l.err
}

func (l *CSV) write(rec []string) {
	if l.err != nil {
		return
	}
	if err := l.w.Write(rec); err != nil {
		l.err = err
		return
	}
	l.w.Flush()
	l.err = l.w.Error()
}

// Console is a sched.Observer that prints one human-readable line per task
// event. Pass boundaries are skipped for the brevity of output.
type Console struct {
	w io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Observe implements sched.Observer.
func (c *Console) Observe(ev sched.Event) {
	if ev.Kind == sched.EventPassStart || ev.Kind == sched.EventPassEnd {
		return
	}

	msg := fmt.Sprintf("%10.3fms [%s] => Task: %04d, priority=%s",
		float64(ev.Time.Microseconds())/1000,
		center(ev.Kind.String(), 12),
		ev.TaskID,
		ev.Priority,
	)
	if ev.DidTimeout {
		msg += ", timed out"
	}
	if ev.Err != nil {
		msg += ", error=" + ev.Err.Error()
	}
	fmt.Fprintln(c.w, msg)
}

// center pads str with spaces on both sides to width.
func center(str string, width int) string {
	if len(str) >= width {
		return str
	}
	spaces := (width - len(str)) / 2
	return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
}
