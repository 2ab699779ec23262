// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	applog "tonecast/internal/log"
	"tonecast/internal/observe"
)

// Supervisor keeps a Source running. Whenever a capture run ends, for any
// reason, it waits a fixed delay and starts a new one. There is no backoff
// and no retry ceiling; only cancellation of the Run context stops it.
type Supervisor struct {
	source  Source
	delay   time.Duration
	metrics *observe.Metrics

	running  atomic.Bool
	restarts atomic.Int64
}

// NewSupervisor returns a supervisor for source restarting after delay.
func NewSupervisor(source Source, delay time.Duration, metrics *observe.Metrics) *Supervisor {
	return &Supervisor{source: source, delay: delay, metrics: metrics}
}

// Running reports whether a capture run is currently active.
func (s *Supervisor) Running() bool { return s.running.Load() }

// Restarts returns how many times the source has been restarted.
func (s *Supervisor) Restarts() int64 { return s.restarts.Load() }

// Run drives the source until ctx is cancelled, forwarding every chunk and
// one Closed event per capture run to events. events is closed on return.
func (s *Supervisor) Run(ctx context.Context, events chan<- Event) {
	defer close(events)

	for {
		err := s.runOnce(ctx, events)
		if ctx.Err() != nil {
			applog.Infof("CaptureSupervisor: %s stopped", s.source.Name())
			return
		}

		if err != nil {
			applog.Errorf("CaptureSupervisor: %s failed: %v; restarting in %s", s.source.Name(), err, s.delay)
		} else {
			applog.Infof("CaptureSupervisor: %s closed; restarting in %s", s.source.Name(), s.delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.delay):
		}
		s.restarts.Add(1)
		s.metrics.RecordCaptureRestart(ctx, s.source.Name())
	}
}

func (s *Supervisor) runOnce(ctx context.Context, events chan<- Event) error {
	chunks := make(chan []byte, 16)
	var captureErr error

	s.running.Store(true)
	go func() {
		defer close(chunks)
		captureErr = s.source.Capture(ctx, chunks)
	}()

	for chunk := range chunks {
		select {
		case events <- Event{Chunk: chunk}:
		case <-ctx.Done():
			// Drain so the capture goroutine can observe cancellation and exit.
			for range chunks {
			}
			s.running.Store(false)
			return ctx.Err()
		}
	}
	s.running.Store(false)

	err := captureErr
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return err
	}

	select {
	case events <- Event{Closed: true, Err: err}:
	case <-ctx.Done():
	}
	return err
}
