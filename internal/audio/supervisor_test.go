// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedSource replays one script entry per capture run.
type scriptedSource struct {
	mu     sync.Mutex
	runs   []scriptedRun
	starts []time.Time
}

type scriptedRun struct {
	chunks [][]byte
	err    error
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Capture(ctx context.Context, chunks chan<- []byte) error {
	s.mu.Lock()
	s.starts = append(s.starts, time.Now())
	idx := len(s.starts) - 1
	s.mu.Unlock()

	if idx >= len(s.runs) {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, c := range s.runs[idx].chunks {
		if err := send(ctx, chunks, c); err != nil {
			return err
		}
	}
	return s.runs[idx].err
}

func (s *scriptedSource) startTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.starts...)
}

func TestSupervisorRestartsAfterEveryTermination(t *testing.T) {
	boom := errors.New("device unplugged")
	src := &scriptedSource{runs: []scriptedRun{
		{chunks: [][]byte{{1}, {2}}, err: boom},
		{chunks: [][]byte{{3}}, err: nil},
		{err: boom},
	}}
	const delay = 20 * time.Millisecond
	sup := NewSupervisor(src, delay, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan Event)
	go sup.Run(ctx, events)

	var got []Event
	for ev := range events {
		got = append(got, ev)
		if ev.Closed && len(got) == 6 {
			break
		}
	}

	want := []Event{
		{Chunk: []byte{1}}, {Chunk: []byte{2}}, {Closed: true, Err: boom},
		{Chunk: []byte{3}}, {Closed: true},
		{Closed: true, Err: boom},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if want[i].Closed != got[i].Closed || !errors.Is(got[i].Err, want[i].Err) {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
		if len(want[i].Chunk) > 0 && got[i].Chunk[0] != want[i].Chunk[0] {
			t.Errorf("event %d chunk = %v, want %v", i, got[i].Chunk, want[i].Chunk)
		}
	}

	cancel()
	for range events {
	}

	starts := src.startTimes()
	if len(starts) < 3 {
		t.Fatalf("expected at least 3 capture runs, got %d", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < delay {
			t.Errorf("restart %d came after %s, want at least %s", i, gap, delay)
		}
	}
	if sup.Restarts() < 2 {
		t.Errorf("Restarts() = %d, want >= 2", sup.Restarts())
	}
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	src := &scriptedSource{}
	sup := NewSupervisor(src, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event)
	done := make(chan struct{})
	go func() {
		sup.Run(ctx, events)
		close(done)
	}()

	deadline := time.After(time.Second)
	for !sup.Running() {
		select {
		case <-deadline:
			t.Fatal("supervisor never reported running")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	for range events {
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sup.Running() {
		t.Error("Running() should be false after stop")
	}
}
