package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventStreamBuffersWhileDetached(t *testing.T) {
	t.Parallel()

	es := newEventStream(2)
	for _, msg := range []string{"a", "b", "c"} {
		if err := es.Send([]byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	if _, err := es.attach(rec, rec, 0); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	out := rec.Body.String()
	if strings.Contains(out, "data: a") {
		t.Fatalf("expected oldest event to fall out of the buffer, got %q", out)
	}
	if !strings.Contains(out, "id: 2\nevent: message\ndata: b") || !strings.Contains(out, "id: 3\nevent: message\ndata: c") {
		t.Fatalf("expected events 2 and 3 replayed, got %q", out)
	}
}

func TestEventStreamReattachReleasesPrevious(t *testing.T) {
	t.Parallel()

	es := newEventStream(10)
	first := httptest.NewRecorder()
	released, err := es.attach(first, first, 0)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	second := httptest.NewRecorder()
	if _, err := es.attach(second, second, 0); err != nil {
		t.Fatalf("second attach failed: %v", err)
	}
	select {
	case <-released:
	default:
		t.Fatal("expected first writer to be released")
	}

	_ = es.Send([]byte("x"))
	if first.Body.Len() != 0 || !strings.Contains(second.Body.String(), "data: x") {
		t.Fatal("expected live events on the newest writer only")
	}
	// Detaching a stale handle leaves the live writer alone.
	es.detach(released)
	_ = es.Send([]byte("y"))
	if !strings.Contains(second.Body.String(), "data: y") {
		t.Fatal("expected second writer to stay attached")
	}
}

func TestEventStreamClose(t *testing.T) {
	t.Parallel()

	es := newEventStream(10)
	rec := httptest.NewRecorder()
	attached, _ := es.attach(rec, rec, 0)

	if err := es.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	<-attached
	if err := es.Send([]byte("late")); !errors.Is(err, errStreamClosed) {
		t.Fatalf("expected errStreamClosed, got %v", err)
	}
	if _, err := es.attach(rec, rec, 0); !errors.Is(err, errStreamClosed) {
		t.Fatalf("expected attach to fail after close, got %v", err)
	}
	if err := es.Close(); err != nil {
		t.Fatalf("expected second Close to be a no-op, got %v", err)
	}
}

func TestLastEventID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header, query string
		want          int64
	}{
		{"", "", 0},
		{"7", "", 7},
		{"", "9", 9},
		{"abc", "", 0},
		{"-3", "", 0},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/mcp?lastEventId="+tt.query, nil)
		if tt.header != "" {
			r.Header.Set("Last-Event-ID", tt.header)
		}
		if got := lastEventID(r); got != tt.want {
			t.Fatalf("header %q query %q: expected %d, got %d", tt.header, tt.query, tt.want, got)
		}
	}
}
