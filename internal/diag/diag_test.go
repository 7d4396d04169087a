package diag

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestRecorder_EventsAndLast(t *testing.T) {
	r := &Recorder{}
	if _, ok := r.Last(); ok {
		t.Fatal("expected no event on an empty recorder")
	}

	Emit(context.Background(), r, "session.revalidate", errors.New("boom"))
	Emit(context.Background(), r, "accounts.list", errors.New("down"))

	events := r.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	last, ok := r.Last()
	if !ok || last.Op != "accounts.list" || last.Err.Error() != "down" {
		t.Errorf("unexpected last event %+v", last)
	}
	if last.Time.IsZero() {
		t.Error("expected Emit to stamp the event")
	}

	events[0].Op = "mutated"
	if r.Events()[0].Op != "session.revalidate" {
		t.Error("Events must return a copy")
	}
}

func TestRecorder_Concurrent(t *testing.T) {
	r := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Emit(context.Background(), r, "op", errors.New("x"))
		}()
	}
	wg.Wait()
	if n := len(r.Events()); n != 50 {
		t.Fatalf("expected 50 events, got %d", n)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	Emit(context.Background(), sink, "session.revalidate", errors.New("token rejected"))

	out := buf.String()
	for _, want := range []string{"level=WARN", "op=session.revalidate", `error="token rejected"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}
