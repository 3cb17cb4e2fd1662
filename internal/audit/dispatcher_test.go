package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(sink, 8)

	for _, name := range []string{EventLoginSuccess, EventRefreshSuccess, EventLogout} {
		d.Emit(Event{EventType: name, Timestamp: time.Now()})
	}
	d.Close()

	for _, want := range []string{EventLoginSuccess, EventRefreshSuccess, EventLogout} {
		select {
		case got := <-sink.Events():
			if got.EventType != want {
				t.Fatalf("event = %q, want %q", got.EventType, want)
			}
		default:
			t.Fatalf("event %q was not delivered", want)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	// A sink that never consumes: everything past the buffer is dropped.
	blocked := make(chan struct{})
	d := NewDispatcher(sinkFunc(func(context.Context, Event) { <-blocked }), 1)
	t.Cleanup(func() {
		close(blocked)
		d.Close()
	})

	for i := 0; i < 64; i++ {
		d.Emit(Event{EventType: EventLoginFailure})
	}

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a saturated buffer")
	}
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(Event{EventType: EventLogout})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		EventType: EventReuseDetected,
		UserID:    "user-1",
		Success:   false,
		Reason:    "reuse",
	})

	line := strings.TrimSpace(buf.String())
	var decoded Event
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not one JSON object per line: %v", err)
	}
	if decoded.EventType != EventReuseDetected || decoded.UserID != "user-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
}

type sinkFunc func(context.Context, Event)

func (f sinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }
