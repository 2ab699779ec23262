// SPDX-License-Identifier: MIT
package dispatch

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// NewUpgrader returns the websocket upgrader used for live sockets.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// WebSocketSubscriber writes live events as websocket text frames. Inbound
// frames are discarded; a read error marks the peer as gone.
type WebSocketSubscriber struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	closed  bool
	done    chan struct{}
}

// NewWebSocketSubscriber wraps conn and starts its reader goroutine.
func NewWebSocketSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	s := &WebSocketSubscriber{
		conn:    conn,
		timeout: writeTimeout,
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *WebSocketSubscriber) readLoop() {
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			_ = s.Close()
			return
		}
	}
}

// Send writes one text frame.
func (s *WebSocketSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Done is closed once the connection is closed.
func (s *WebSocketSubscriber) Done() <-chan struct{} { return s.done }

// Close sends a close frame and closes the connection.
func (s *WebSocketSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)

	deadline := time.Now().Add(s.timeout)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
