// SPDX-License-Identifier: MIT
//
// Package observe holds the OpenTelemetry metric instruments of the
// pipeline and the Prometheus bridge that exposes them on /metrics.
//
// Components receive a *Metrics and call its Record helpers. All helpers are
// safe on a nil receiver so that tests and tools can pass nil.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "tonecast"

// Metrics holds all OpenTelemetry metric instruments for the application.
type Metrics struct {
	// FramesProcessed counts frames that produced a message.
	FramesProcessed metric.Int64Counter

	// FramesDropped counts frames rejected by analysis. Attribute: reason.
	FramesDropped metric.Int64Counter

	// FrameDuration tracks analyze-to-dispatch latency per frame.
	FrameDuration metric.Float64Histogram

	// Messages counts synthesized messages. Attribute: answer.
	Messages metric.Int64Counter

	// SinkDeliveries counts delivery attempts. Attributes: sink, status.
	SinkDeliveries metric.Int64Counter

	// CaptureRestarts counts supervisor restarts. Attribute: source.
	CaptureRestarts metric.Int64Counter

	// LiveSubscribers tracks connected live-event subscribers.
	LiveSubscribers metric.Int64UpDownCounter
}

var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProcessed, err = m.Int64Counter("tonecast.frames.processed",
		metric.WithDescription("Frames that produced a message."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("tonecast.frames.dropped",
		metric.WithDescription("Frames dropped before classification."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("tonecast.frame.duration",
		metric.WithDescription("Time from analysis to dispatch of one frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Messages, err = m.Int64Counter("tonecast.messages",
		metric.WithDescription("Synthesized messages by answer."),
	); err != nil {
		return nil, err
	}
	if met.SinkDeliveries, err = m.Int64Counter("tonecast.sink.deliveries",
		metric.WithDescription("Sink delivery attempts by sink and status."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("tonecast.capture.restarts",
		metric.WithDescription("Capture source restarts."),
	); err != nil {
		return nil, err
	}
	if met.LiveSubscribers, err = m.Int64UpDownCounter("tonecast.live.subscribers",
		metric.WithDescription("Connected live-event subscribers."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame records one processed frame and its latency.
func (m *Metrics) RecordFrame(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FramesProcessed.Add(ctx, 1)
	m.FrameDuration.Record(ctx, d.Seconds())
}

// RecordDroppedFrame records a frame dropped for reason.
func (m *Metrics) RecordDroppedFrame(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordMessage records a synthesized message.
func (m *Metrics) RecordMessage(ctx context.Context, answer string) {
	if m == nil {
		return
	}
	m.Messages.Add(ctx, 1, metric.WithAttributes(attribute.String("answer", answer)))
}

// RecordDelivery records one sink delivery attempt with status "ok" or "error".
func (m *Metrics) RecordDelivery(ctx context.Context, sink, status string) {
	if m == nil {
		return
	}
	m.SinkDeliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.String("status", status),
	))
}

// RecordCaptureRestart records a supervisor restart of source.
func (m *Metrics) RecordCaptureRestart(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.CaptureRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// AddSubscribers adjusts the live subscriber gauge by delta.
func (m *Metrics) AddSubscribers(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.LiveSubscribers.Add(ctx, delta)
}
