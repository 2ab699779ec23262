// SPDX-License-Identifier: MIT
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultWriteTimeout bounds a single write to a live subscriber.
const DefaultWriteTimeout = 2 * time.Second

// StreamSubscriber writes live events as server-sent events.
type StreamSubscriber struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	closed  bool
	done    chan struct{}
}

// NewStreamSubscriber prepares w for an event stream and writes the
// reconnect hint once.
func NewStreamSubscriber(w http.ResponseWriter, retry, writeTimeout time.Duration) (*StreamSubscriber, error) {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	s := &StreamSubscriber{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: writeTimeout,
		done:    make(chan struct{}),
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := s.write(fmt.Sprintf("retry: %d\n\n", retry.Milliseconds())); err != nil {
		return nil, err
	}
	return s, nil
}

// Send writes one "data:" event.
func (s *StreamSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	return s.writeLocked("data: " + string(data) + "\n\n")
}

func (s *StreamSubscriber) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(frame)
}

func (s *StreamSubscriber) writeLocked(frame string) error {
	if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := s.w.Write([]byte(frame)); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

// Done is closed once the subscriber is closed.
func (s *StreamSubscriber) Done() <-chan struct{} { return s.done }

// Close stops further writes. The HTTP handler owning the response returns
// once Done is closed.
func (s *StreamSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}
