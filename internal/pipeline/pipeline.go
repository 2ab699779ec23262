// SPDX-License-Identifier: MIT
//
// Package pipeline turns the supervised capture stream into messages:
// accumulate, analyze, smooth, classify, synthesize, publish, dispatch.
// One goroutine runs the pipeline; the latest message is published for
// concurrent readers.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"tonecast/internal/analysis"
	"tonecast/internal/audio"
	"tonecast/internal/config"
	"tonecast/internal/dispatch"
	"tonecast/internal/log"
	"tonecast/internal/message"
	"tonecast/internal/observe"
)

// maxRecorderFailures disables the recording tap after this many
// consecutive write errors.
const maxRecorderFailures = 5

// Options are the optional collaborators of a Pipeline.
type Options struct {
	// Recorder receives every raw chunk before framing.
	Recorder io.Writer

	// Running reports whether capture is active, for Snapshot.
	Running func() bool

	Metrics *observe.Metrics

	// Now defaults to time.Now.
	Now func() time.Time
}

// Snapshot is the state exposed to the HTTP surface.
type Snapshot struct {
	Running bool
	Last    *message.Message
}

// State is the part of the pipeline shared with readers.
type State struct {
	last    atomic.Pointer[message.Message]
	running func() bool
}

// Latest returns the most recent message, if any.
func (s *State) Latest() (message.Message, bool) {
	m := s.last.Load()
	if m == nil {
		return message.Message{}, false
	}
	return *m, true
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{Last: s.last.Load()}
	if s.running != nil {
		snap.Running = s.running()
	}
	return snap
}

func (s *State) publish(m message.Message) {
	s.last.Store(&m)
}

// Pipeline owns the accumulator and the smoothing window. Only Run, or
// the goroutine calling Handle, may touch them.
type Pipeline struct {
	State

	acc         *audio.Accumulator
	analyzer    *analysis.Analyzer
	smoother    *analysis.Smoother
	classifier  *analysis.Classifier
	synthesizer *message.Synthesizer
	hub         *dispatch.Hub

	minInterval  time.Duration
	lastDispatch time.Time

	recorder         io.Writer
	recorderFailures int

	metrics *observe.Metrics
	now     func() time.Time
}

// New builds the stages from cfg.
func New(cfg config.Config, synth *message.Synthesizer, hub *dispatch.Hub, opts Options) (*Pipeline, error) {
	acc, err := audio.NewAccumulator(cfg.Audio.FrameSize, cfg.Audio.Normalize)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(cfg.Audio.FrameSize, cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	smoother, err := analysis.NewSmoother(cfg.Analysis.SmoothingWindow)
	if err != nil {
		return nil, err
	}
	classifier, err := analysis.NewClassifier(analysis.ClassifierConfigFrom(cfg.Analysis, cfg.Audio.SampleRate))
	if err != nil {
		return nil, err
	}
	if synth == nil || hub == nil {
		return nil, fmt.Errorf("pipeline needs a synthesizer and a hub")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Pipeline{
		State:       State{running: opts.Running},
		acc:         acc,
		analyzer:    analyzer,
		smoother:    smoother,
		classifier:  classifier,
		synthesizer: synth,
		hub:         hub,
		minInterval: cfg.Pipeline.MinDispatchInterval,
		recorder:    opts.Recorder,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}, nil
}

// Run consumes events until the channel is closed or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, events <-chan audio.Event) error {
	log.Infof("Pipeline: started (frame size %d)", p.acc.FrameSize())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				log.Infof("Pipeline: capture stream ended")
				return nil
			}
			p.Handle(ctx, ev)
		}
	}
}

// Handle processes one capture event.
func (p *Pipeline) Handle(ctx context.Context, ev audio.Event) {
	if ev.Closed {
		if ev.Err != nil {
			if n := p.acc.Discard(); n > 0 {
				log.Debugf("Pipeline: discarded %d pending bytes after capture error", n)
			}
			return
		}
		if f, ok := p.acc.Flush(); ok {
			p.ProcessFrame(ctx, f)
		}
		return
	}

	p.record(ev.Chunk)
	for _, f := range p.acc.Push(ev.Chunk) {
		p.ProcessFrame(ctx, f)
	}
}

// ProcessFrame runs one frame through analysis and dispatch. It reports
// false when the frame was dropped.
func (p *Pipeline) ProcessFrame(ctx context.Context, f audio.Frame) (message.Message, bool) {
	start := time.Now()

	spectrum, err := p.analyzer.Analyze(f.Samples)
	if err != nil {
		log.Warnf("Pipeline: dropping frame %d: %v", f.Seq, err)
		p.metrics.RecordDroppedFrame(ctx, "analysis")
		return message.Message{}, false
	}

	c := p.classifier.Classify(p.smoother.Smooth(spectrum))
	msg := p.synthesizer.Synthesize(c, p.now())
	p.publish(msg)
	p.metrics.RecordMessage(ctx, c.Answer.String())

	if p.shouldDispatch(msg.Timestamp) {
		report := p.hub.Dispatch(ctx, msg)
		log.Debugf("Pipeline: frame %d -> %s (%s) delivered %d, detached %d, failed %d",
			f.Seq, c.Answer, message.FormatFrequency(c.DominantFrequency),
			report.Delivered, report.Detached, len(report.Failed))
	}

	p.metrics.RecordFrame(ctx, time.Since(start))
	return msg, true
}

func (p *Pipeline) shouldDispatch(at time.Time) bool {
	if p.minInterval > 0 && !p.lastDispatch.IsZero() && at.Sub(p.lastDispatch) < p.minInterval {
		return false
	}
	p.lastDispatch = at
	return true
}

func (p *Pipeline) record(chunk []byte) {
	if p.recorder == nil {
		return
	}
	if _, err := p.recorder.Write(chunk); err != nil {
		p.recorderFailures++
		log.Warnf("Pipeline: recording write failed (%d/%d): %v", p.recorderFailures, maxRecorderFailures, err)
		if p.recorderFailures >= maxRecorderFailures {
			log.Errorf("Pipeline: disabling recording after %d consecutive failures", p.recorderFailures)
			p.recorder = nil
		}
		return
	}
	p.recorderFailures = 0
}

// Recording reports whether the recording tap is active.
func (p *Pipeline) Recording() bool { return p.recorder != nil }
