package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer emits frames to an HTTP response and flushes after each one.
// Heartbeats may be written from another goroutine.
type Writer struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{w: w}
}

func (s *Writer) Thinking(status string) error {
	return s.write(KindThinking, thinkingPayload{Status: status})
}

func (s *Writer) Content(delta string) error {
	return s.write(KindContent, contentPayload{Delta: delta})
}

func (s *Writer) Done() error {
	return s.write(KindDone, struct{}{})
}

// Heartbeat writes a comment frame that keeps idle connections open.
func (s *Writer) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Writer) write(kind Kind, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, data); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Writer) flush() {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}
