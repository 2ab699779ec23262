// SPDX-License-Identifier: MIT
//
// Package dispatch fans messages out to independent sinks. A failing or
// panicking sink never affects the other sinks or the caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"tonecast/internal/log"
	"tonecast/internal/message"
	"tonecast/internal/observe"

	"golang.org/x/sync/semaphore"
)

// Sink receives messages.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, msg message.Message) error
}

// ErrAsyncSaturated is recorded when a detached delivery is skipped because
// the in-flight limit is reached.
var ErrAsyncSaturated = errors.New("detached delivery limit reached")

const (
	defaultMaxInFlight    = 64
	defaultSinkTimeout    = 5 * time.Second
	defaultFailureHistory = 128
)

// Failure is one recorded sink error.
type Failure struct {
	Sink string
	Err  error
	At   time.Time
}

// Report summarises one Dispatch call. Failures of detached sinks happen
// after Dispatch returns and only show up in Hub.Failures.
type Report struct {
	Delivered int
	Detached  int
	Failed    []Failure
}

// Options tunes a Hub. Zero values select the defaults.
type Options struct {
	MaxInFlight    int64
	Timeout        time.Duration
	FailureHistory int
	Metrics        *observe.Metrics
}

type registration struct {
	sink     Sink
	detached bool
}

// Hub delivers each message to every registered sink.
type Hub struct {
	mu    sync.RWMutex
	sinks []registration

	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *observe.Metrics

	failMu   sync.Mutex
	failures []Failure
	failNext int
	failFull bool
}

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSinkTimeout
	}
	if opts.FailureHistory <= 0 {
		opts.FailureHistory = defaultFailureHistory
	}
	return &Hub{
		sem:      semaphore.NewWeighted(opts.MaxInFlight),
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		failures: make([]Failure, opts.FailureHistory),
	}
}

// Register adds a sink delivered synchronously, in registration order,
// within Dispatch.
func (h *Hub) Register(s Sink) {
	h.add(s, false)
}

// RegisterAsync adds a sink delivered in its own goroutine. The delivery
// outlives the Dispatch context's cancellation and is bounded by the hub
// timeout instead.
func (h *Hub) RegisterAsync(s Sink) {
	h.add(s, true)
}

func (h *Hub) add(s Sink, detached bool) {
	h.mu.Lock()
	h.sinks = append(h.sinks, registration{sink: s, detached: detached})
	h.mu.Unlock()
	log.Infof("Dispatch: registered sink %q (detached: %t)", s.Name(), detached)
}

// Len returns the number of registered sinks.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Dispatch attempts delivery of msg to every sink. It never returns an
// error; the report lists the synchronous failures.
func (h *Hub) Dispatch(ctx context.Context, msg message.Message) Report {
	h.mu.RLock()
	sinks := make([]registration, len(h.sinks))
	copy(sinks, h.sinks)
	h.mu.RUnlock()

	var report Report
	for _, reg := range sinks {
		if reg.detached {
			if err := h.detach(ctx, reg.sink, msg); err != nil {
				report.Failed = append(report.Failed, h.fail(ctx, reg.sink.Name(), err))
				continue
			}
			report.Detached++
			continue
		}

		if err := h.deliver(ctx, reg.sink, msg); err != nil {
			report.Failed = append(report.Failed, h.fail(ctx, reg.sink.Name(), err))
			continue
		}
		h.metrics.RecordDelivery(ctx, reg.sink.Name(), "ok")
		report.Delivered++
	}
	return report
}

func (h *Hub) detach(ctx context.Context, s Sink, msg message.Message) error {
	if !h.sem.TryAcquire(1) {
		return ErrAsyncSaturated
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	go func() {
		defer h.sem.Release(1)
		defer cancel()
		if err := h.deliver(dctx, s, msg); err != nil {
			h.fail(dctx, s.Name(), err)
			return
		}
		h.metrics.RecordDelivery(dctx, s.Name(), "ok")
	}()
	return nil
}

func (h *Hub) deliver(ctx context.Context, s Sink, msg message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return s.Deliver(ctx, msg)
}

func (h *Hub) fail(ctx context.Context, sink string, err error) Failure {
	f := Failure{Sink: sink, Err: err, At: time.Now()}
	log.Warnf("Dispatch: sink %q failed: %v", sink, err)
	h.metrics.RecordDelivery(ctx, sink, "error")

	h.failMu.Lock()
	h.failures[h.failNext] = f
	h.failNext = (h.failNext + 1) % len(h.failures)
	if h.failNext == 0 {
		h.failFull = true
	}
	h.failMu.Unlock()
	return f
}

// Failures returns the most recent sink failures, oldest first.
func (h *Hub) Failures() []Failure {
	h.failMu.Lock()
	defer h.failMu.Unlock()

	if !h.failFull {
		return append([]Failure(nil), h.failures[:h.failNext]...)
	}
	out := make([]Failure, 0, len(h.failures))
	out = append(out, h.failures[h.failNext:]...)
	return append(out, h.failures[:h.failNext]...)
}

// Close closes every sink that implements io.Closer. Detached deliveries
// still running are not awaited.
func (h *Hub) Close() error {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = nil
	h.mu.Unlock()

	var errs []error
	for _, reg := range sinks {
		c, ok := reg.sink.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", reg.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
