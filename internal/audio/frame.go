// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"

	"tonecast/pkg/pcm"
)

// Frame is a fixed-length block of samples in arrival order.
type Frame struct {
	Seq     uint64
	Samples []float64
}

// Accumulator slices an unaligned byte stream of 16-bit little-endian PCM
// into frames of exactly frameSize samples. Bytes that do not yet fill a
// frame are carried over to the next Push.
//
// An Accumulator is owned by a single goroutine.
type Accumulator struct {
	frameSize  int
	frameBytes int
	normalize  bool
	pending    []byte
	seq        uint64
}

// NewAccumulator returns an accumulator producing frames of frameSize samples.
// With normalize set, samples are scaled into [-1, 1).
func NewAccumulator(frameSize int, normalize bool) (*Accumulator, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	return &Accumulator{
		frameSize:  frameSize,
		frameBytes: frameSize * pcm.BytesPerSample,
		normalize:  normalize,
		pending:    make([]byte, 0, 2*frameSize*pcm.BytesPerSample),
	}, nil
}

// FrameSize returns the number of samples per emitted frame.
func (a *Accumulator) FrameSize() int { return a.frameSize }

// Push appends data and returns every complete frame now available.
func (a *Accumulator) Push(data []byte) []Frame {
	a.pending = append(a.pending, data...)

	var frames []Frame
	consumed := 0
	for len(a.pending)-consumed >= a.frameBytes {
		frames = append(frames, a.decode(a.pending[consumed:consumed+a.frameBytes]))
		consumed += a.frameBytes
	}
	if consumed > 0 {
		n := copy(a.pending, a.pending[consumed:])
		a.pending = a.pending[:n]
	}
	return frames
}

// Flush emits the pending bytes as one zero-padded frame. It reports false
// when nothing is pending. Used when the stream closes cleanly.
func (a *Accumulator) Flush() (Frame, bool) {
	if len(a.pending) == 0 {
		return Frame{}, false
	}
	block := make([]byte, a.frameBytes)
	copy(block, a.pending)
	a.pending = a.pending[:0]
	return a.decode(block), true
}

// Discard drops the pending bytes and returns how many were dropped. Used
// when the stream ends with an error.
func (a *Accumulator) Discard() int {
	n := len(a.pending)
	a.pending = a.pending[:0]
	return n
}

// Pending returns a copy of the bytes carried over to the next Push.
func (a *Accumulator) Pending() []byte {
	return append([]byte(nil), a.pending...)
}

func (a *Accumulator) decode(block []byte) Frame {
	raw := pcm.DecodeLE(block)
	samples := make([]float64, len(raw))
	for i, s := range raw {
		if a.normalize {
			samples[i] = float64(s) / 32768
		} else {
			samples[i] = float64(s)
		}
	}
	a.seq++
	return Frame{Seq: a.seq, Samples: samples}
}
