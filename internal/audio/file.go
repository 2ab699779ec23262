// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"os"
	"time"

	applog "tonecast/internal/log"
	"tonecast/pkg/pcm"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource plays a WAV file as if it were a live device. It is the
// capture used in file-fallback mode. Reaching the end of the file is a
// clean close, so under a Supervisor the file loops after the restart
// delay. Any bit depth is rescaled to 16 bits and only the first channel
// is kept.
type FileSource struct {
	Path        string
	ChunkFrames int  // Frames per emitted chunk.
	Realtime    bool // Pace chunks at the file's sample rate.
	SampleRate  float64
}

var _ Source = (*FileSource)(nil)

// Name identifies the source in logs and metrics.
func (s *FileSource) Name() string { return "file" }

// Capture decodes the file and emits its samples as PCM chunks.
func (s *FileSource) Capture(ctx context.Context, chunks chan<- []byte) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.Path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", s.Path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("failed to locate PCM data in %s: %w", s.Path, err)
	}

	channels := max(int(dec.NumChans), 1)
	bitDepth := int(dec.BitDepth)
	rate := float64(dec.SampleRate)
	if s.SampleRate > 0 && rate != s.SampleRate {
		applog.Warnf("FileSource: %s is %.0f Hz but analysis assumes %.0f Hz", s.Path, rate, s.SampleRate)
	}

	frames := s.ChunkFrames
	if frames <= 0 {
		frames = DefaultFramesPerBuffer
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: int(rate)},
		Data:   make([]int, frames*channels),
	}
	mono := make([]int16, frames)

	var tick <-chan time.Time
	if s.Realtime && rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(frames) / rate * float64(time.Second)))
		defer ticker.Stop()
		tick = ticker.C
	}

	applog.Infof("FileSource: Playing %s (%.0f Hz, %d-bit, %d ch)", s.Path, rate, bitDepth, channels)
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", s.Path, err)
		}
		if n == 0 {
			return nil
		}

		count := n / channels
		for i := 0; i < count; i++ {
			mono[i] = pcm.FromDepth(buf.Data[i*channels], bitDepth)
		}
		if err := send(ctx, chunks, pcm.EncodeLE(mono[:count])); err != nil {
			return err
		}

		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
