package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"
)

var errStreamClosed = errors.New("event stream closed")

// defaultReplayBuffer is the number of events kept for Last-Event-ID replay.
const defaultReplayBuffer = 100

type sseEvent struct {
	id   int64
	data []byte
}

// eventStream is a session's server-push channel. It implements
// session.Conn. Events sent while no HTTP stream is attached are kept in a
// bounded buffer and replayed on the next attach.
type eventStream struct {
	mu         sync.Mutex
	nextID     int64
	buffer     []sseEvent
	replaySize int

	w        io.Writer
	flusher  http.Flusher
	attached chan struct{} // closed when the current writer is replaced or detached

	closed bool
	done   chan struct{}
}

func newEventStream(replaySize int) *eventStream {
	if replaySize <= 0 {
		replaySize = defaultReplayBuffer
	}
	return &eventStream{replaySize: replaySize, done: make(chan struct{})}
}

// Send assigns msg the next event id, buffers it and writes it to the
// attached stream, if any.
func (s *eventStream) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	s.nextID++
	ev := sseEvent{id: s.nextID, data: msg}
	s.buffer = append(s.buffer, ev)
	if len(s.buffer) > s.replaySize {
		s.buffer = s.buffer[len(s.buffer)-s.replaySize:]
	}

	if s.w != nil {
		if err := writeSSEWithID(s.w, ev.id, "message", ev.data); err != nil {
			s.detachLocked()
			return nil
		}
		s.flusher.Flush()
	}
	return nil
}

// Close ends the stream. Attached writers are released.
func (s *eventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.detachLocked()
	close(s.done)
	return nil
}

// attach makes w the live writer and replays buffered events after
// lastEventID. A previous writer is released. The returned channel is closed
// when w stops being the live writer.
func (s *eventStream) attach(w io.Writer, flusher http.Flusher, lastEventID int64) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStreamClosed
	}
	s.detachLocked()

	for _, ev := range s.buffer {
		if ev.id <= lastEventID {
			continue
		}
		if err := writeSSEWithID(w, ev.id, "message", ev.data); err != nil {
			return nil, err
		}
	}
	flusher.Flush()

	s.w = w
	s.flusher = flusher
	s.attached = make(chan struct{})
	return s.attached, nil
}

// detach releases w if it is still the live writer.
func (s *eventStream) detach(attached <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached != nil && s.attached == attached {
		s.detachLocked()
	}
}

func (s *eventStream) detachLocked() {
	if s.attached != nil {
		close(s.attached)
	}
	s.w = nil
	s.flusher = nil
	s.attached = nil
}

// writeRaw writes an unbuffered event, such as the endpoint announcement.
func (s *eventStream) writeRaw(attached <-chan struct{}, event, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == nil || s.attached != attached {
		return errStreamClosed
	}
	if err := writeSSE(s.w, event, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// keepalive writes a comment line to hold intermediaries open.
func (s *eventStream) keepalive(attached <-chan struct{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached == nil || s.attached != attached {
		return errStreamClosed
	}
	if _, err := io.WriteString(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// lastEventID reads Last-Event-ID from the header or the lastEventId query
// parameter.
func lastEventID(r *http.Request) int64 {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// startSSE writes the stream headers and the reconnect hint.
func startSSE(w http.ResponseWriter, retry time.Duration) (http.Flusher, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if retry > 0 {
		if _, err := fmt.Fprintf(w, "retry: %d\n\n", retry.Milliseconds()); err != nil {
			return nil, err
		}
	}
	flusher.Flush()
	return flusher, nil
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
