// Package diag collects failures that are recovered without user action,
// such as a rejected stored token or a failed list refresh.
package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one recovered failure.
type Event struct {
	Op   string
	Err  error
	Time time.Time
}

// Sink receives recovered failures.
type Sink interface {
	Report(ctx context.Context, ev Event)
}

// LogSink writes events to a slog logger at WARN level.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink returns a LogSink that uses logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Report(ctx context.Context, ev Event) {
	s.Logger.WarnContext(ctx, "recovered failure", "op", ev.Op, "error", ev.Err)
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Report(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything reported so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event and whether there was one.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Emit reports err under op with the current time. A nil sink falls back to
// the default slog logger.
func Emit(ctx context.Context, sink Sink, op string, err error) {
	if sink == nil {
		sink = NewLogSink(nil)
	}
	sink.Report(ctx, Event{Op: op, Err: err, Time: time.Now()})
}
