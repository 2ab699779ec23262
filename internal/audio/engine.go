// SPDX-License-Identifier: MIT
/*
Package audio captures raw PCM and turns it into analysis frames:

  - Sources (PortAudio device, external recorder command, looping WAV file)
    produce 16-bit little-endian byte chunks.
  - The Supervisor keeps one source running and restarts it after a fixed
    delay whenever a capture run ends.
  - The Accumulator slices the byte stream into fixed-size frames.
  - The Recorder optionally taps the raw stream into a WAV file.
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	applog "tonecast/internal/log"
	"tonecast/pkg/pcm"

	"github.com/gordonklaus/portaudio"
)

// DefaultFramesPerBuffer is the PortAudio read size in frames. It is
// independent of the analysis frame size.
const DefaultFramesPerBuffer = 512

// PortAudioSource reads from a PortAudio input device using blocking I/O.
// Only the first channel is kept. PortAudio must be initialized by the
// caller for the lifetime of the source.
type PortAudioSource struct {
	DeviceID        int
	Channels        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

var _ Source = (*PortAudioSource)(nil)

// Name identifies the source in logs and metrics.
func (s *PortAudioSource) Name() string { return "portaudio" }

// Capture opens the device, streams until ctx is cancelled or a read fails,
// and closes the stream. The device is resolved on every run so that a
// replugged device is picked up after a restart.
func (s *PortAudioSource) Capture(ctx context.Context, chunks chan<- []byte) error {
	device, err := InputDevice(s.DeviceID)
	if err != nil {
		return err
	}

	channels := max(s.Channels, 1)
	framesPerBuffer := s.FramesPerBuffer
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}

	latency := device.DefaultHighInputLatency
	if s.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  latency,
		},
		FramesPerBuffer: framesPerBuffer,
		SampleRate:      s.SampleRate,
	}

	buffer := make([]int16, framesPerBuffer*channels)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return fmt.Errorf("failed to open input stream on %q: %w", device.Name, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	defer stream.Stop()

	applog.Infof("PortAudioSource: Capturing from %q (%.0f Hz, %d ch, latency %s)",
		device.Name, s.SampleRate, channels, latency.Round(time.Microsecond))

	mono := make([]int16, framesPerBuffer)
	for ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				applog.Debugf("PortAudioSource: input overflowed")
				continue
			}
			return fmt.Errorf("failed to read input stream: %w", err)
		}

		samples := buffer
		if channels > 1 {
			for i := range mono {
				mono[i] = buffer[i*channels]
			}
			samples = mono
		}
		if err := send(ctx, chunks, pcm.EncodeLE(samples)); err != nil {
			return err
		}
	}
	return ctx.Err()
}
