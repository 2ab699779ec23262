// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tonecast/internal/message"

	"github.com/gorilla/websocket"
)

type memSubscriber struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (s *memSubscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, data)
	return nil
}

func (s *memSubscriber) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func TestBroadcastPrunesFailingSubscribers(t *testing.T) {
	b := NewBroadcast(nil)
	good := &memSubscriber{}
	bad := &memSubscriber{err: ErrSubscriberClosed}
	b.Subscribe(good)
	b.Subscribe(bad)

	if err := b.Deliver(context.Background(), testMessage()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
	if !bad.closed {
		t.Error("failing subscriber should be closed")
	}

	var ev message.Event
	if err := json.Unmarshal(good.frames[0], &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Message != testMessage().Text || ev.Frequency == nil || *ev.Frequency != 1500 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcast(nil)
	s := &memSubscriber{}
	id := b.Subscribe(s)
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	if b.Len() != 0 || !s.closed {
		t.Errorf("Len() = %d, closed = %v", b.Len(), s.closed)
	}
}

func TestBroadcastClose(t *testing.T) {
	b := NewBroadcast(nil)
	subs := []*memSubscriber{{}, {}}
	for _, s := range subs {
		b.Subscribe(s)
	}
	_ = b.Close()
	for i, s := range subs {
		if !s.closed {
			t.Errorf("subscriber %d not closed", i)
		}
	}
}

func TestStreamSubscriber(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewStreamSubscriber(rec, 3*time.Second, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Send([]byte(`{"message":"hi"}`)); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()
	if err := s.Send([]byte("late")); err != ErrSubscriberClosed {
		t.Errorf("Send after Close = %v, want ErrSubscriberClosed", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "retry: 3000\n\ndata: {\"message\":\"hi\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
}

func TestWebSocketSubscriber(t *testing.T) {
	b := NewBroadcast(nil)
	subs := make(chan *WebSocketSubscriber, 1)
	upgrader := NewUpgrader()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s := NewWebSocketSubscriber(conn, time.Second)
		b.Subscribe(s)
		subs <- s
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	sub := <-subs

	if err := b.Deliver(context.Background(), testMessage()); err != nil {
		t.Fatal(err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev message.Event
	if err := client.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.Message != testMessage().Text {
		t.Errorf("Message = %q", ev.Message)
	}

	client.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("server side never noticed the disconnect")
	}

	_ = b.Deliver(context.Background(), testMessage())
	if b.Len() != 0 {
		t.Errorf("Len() = %d after disconnect, want 0", b.Len())
	}
}
