// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tonecast/internal/analysis"
	"tonecast/internal/message"
)

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []message.Message
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, msg message.Message) error {
	s.mu.Lock()
	s.got = append(s.got, msg)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

type funcSink struct {
	name string
	fn   func(ctx context.Context, msg message.Message) error
}

func (s funcSink) Name() string { return s.name }

func (s funcSink) Deliver(ctx context.Context, msg message.Message) error { return s.fn(ctx, msg) }

type closingSink struct {
	recordingSink
	closed bool
	err    error
}

func (s *closingSink) Close() error {
	s.closed = true
	return s.err
}

var errBroken = errors.New("broken")

func testMessage() message.Message {
	return message.NewSynthesizer(nil).Synthesize(analysis.Classification{
		DominantFrequency: 1500, PeakMagnitude: 800, Answer: analysis.Yes, Color: "Violet",
	}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func TestDispatchIsolatesFailures(t *testing.T) {
	h := NewHub(Options{})
	before := &recordingSink{name: "before"}
	after := &recordingSink{name: "after"}

	h.Register(before)
	h.Register(funcSink{name: "failing", fn: func(context.Context, message.Message) error { return errBroken }})
	h.Register(funcSink{name: "panicking", fn: func(context.Context, message.Message) error { panic("boom") }})
	h.Register(after)

	for range 3 {
		r := h.Dispatch(context.Background(), testMessage())
		if r.Delivered != 2 || len(r.Failed) != 2 {
			t.Fatalf("report = %+v, want 2 delivered and 2 failed", r)
		}
	}

	if before.count() != 3 || after.count() != 3 {
		t.Errorf("healthy sinks got %d and %d messages, want 3 each", before.count(), after.count())
	}

	failures := h.Failures()
	if len(failures) != 6 {
		t.Fatalf("Failures() = %d entries, want 6", len(failures))
	}
	if !errors.Is(failures[0].Err, errBroken) || failures[0].Sink != "failing" {
		t.Errorf("first failure = %+v", failures[0])
	}
	if failures[1].Sink != "panicking" || failures[1].Err == nil {
		t.Errorf("second failure = %+v", failures[1])
	}
}

func TestDispatchOrder(t *testing.T) {
	h := NewHub(Options{})
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		h.Register(funcSink{name: name, fn: func(context.Context, message.Message) error {
			order = append(order, name)
			return nil
		}})
	}
	h.Dispatch(context.Background(), testMessage())
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("delivery order = %v", order)
	}
}

func TestDetachedDeliveryOutlivesCancel(t *testing.T) {
	h := NewHub(Options{Timeout: time.Second})
	done := make(chan error, 1)
	h.RegisterAsync(funcSink{name: "slow", fn: func(ctx context.Context, _ message.Message) error {
		time.Sleep(20 * time.Millisecond)
		done <- ctx.Err()
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	r := h.Dispatch(ctx, testMessage())
	cancel()

	if r.Detached != 1 {
		t.Fatalf("report = %+v, want 1 detached", r)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("detached context was cancelled: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("detached delivery never ran")
	}
}

func TestDetachedDeliveryTimeout(t *testing.T) {
	h := NewHub(Options{Timeout: 10 * time.Millisecond})
	done := make(chan error, 1)
	h.RegisterAsync(funcSink{name: "stuck", fn: func(ctx context.Context, _ message.Message) error {
		<-ctx.Done()
		done <- ctx.Err()
		return ctx.Err()
	}})

	h.Dispatch(context.Background(), testMessage())
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("ctx.Err() = %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestDetachedSaturation(t *testing.T) {
	h := NewHub(Options{MaxInFlight: 1, Timeout: time.Second})
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	h.RegisterAsync(funcSink{name: "blocking", fn: func(context.Context, message.Message) error {
		started <- struct{}{}
		<-release
		return nil
	}})

	h.Dispatch(context.Background(), testMessage())
	<-started

	r := h.Dispatch(context.Background(), testMessage())
	close(release)

	if r.Detached != 0 || len(r.Failed) != 1 || !errors.Is(r.Failed[0].Err, ErrAsyncSaturated) {
		t.Errorf("report = %+v, want one saturation failure", r)
	}
}

func TestDetachedFailureRecorded(t *testing.T) {
	h := NewHub(Options{})
	h.RegisterAsync(funcSink{name: "remote", fn: func(context.Context, message.Message) error { return errBroken }})
	h.Dispatch(context.Background(), testMessage())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f := h.Failures(); len(f) == 1 {
			if f[0].Sink != "remote" || !errors.Is(f[0].Err, errBroken) {
				t.Errorf("failure = %+v", f[0])
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("detached failure was not recorded")
}

func TestFailureHistoryIsBounded(t *testing.T) {
	h := NewHub(Options{FailureHistory: 3})
	n := 0
	h.Register(funcSink{name: "failing", fn: func(context.Context, message.Message) error {
		n++
		return errors.New(string(rune('a' + n - 1)))
	}})
	for range 5 {
		h.Dispatch(context.Background(), testMessage())
	}

	f := h.Failures()
	if len(f) != 3 {
		t.Fatalf("len(Failures()) = %d, want 3", len(f))
	}
	for i, want := range []string{"c", "d", "e"} {
		if f[i].Err.Error() != want {
			t.Errorf("Failures()[%d] = %v, want %s", i, f[i].Err, want)
		}
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub(Options{})
	ok := &closingSink{recordingSink: recordingSink{name: "ok"}}
	bad := &closingSink{recordingSink: recordingSink{name: "bad"}, err: errBroken}
	h.Register(ok)
	h.RegisterAsync(bad)
	h.Register(&recordingSink{name: "plain"})

	err := h.Close()
	if !errors.Is(err, errBroken) {
		t.Errorf("Close() = %v, want wrapped errBroken", err)
	}
	if !ok.closed || !bad.closed {
		t.Error("closers were not closed")
	}
	if h.Len() != 0 {
		t.Errorf("Len() after Close = %d", h.Len())
	}
}

func BenchmarkDispatch(b *testing.B) {
	h := NewHub(Options{})
	for range 4 {
		h.Register(funcSink{name: "noop", fn: func(context.Context, message.Message) error { return nil }})
	}
	msg := testMessage()
	ctx := context.Background()
	for b.Loop() {
		h.Dispatch(ctx, msg)
	}
}
