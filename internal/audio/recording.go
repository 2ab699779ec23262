// SPDX-License-Identifier: MIT
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tonecast/pkg/pcm"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes the raw capture stream to a 16-bit mono WAV file. It
// implements io.WriteCloser over little-endian PCM bytes; an odd trailing
// byte is held until the next Write.
type Recorder struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer
	carry   []byte
	closed  bool
}

// RecordingPath returns a timestamped file name inside dir.
func RecordingPath(dir string, now time.Time) string {
	return filepath.Join(dir, "recording-"+now.UTC().Format("02-01-2006-150405")+".wav")
}

// NewRecorder creates path (and its directory) and prepares the encoder.
func NewRecorder(path string, sampleRate int) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	return &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

// Path returns the output file path.
func (r *Recorder) Path() string { return r.path }

// Write appends PCM bytes to the recording.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, fmt.Errorf("recorder %s is closed", r.path)
	}

	data := p
	if len(r.carry) > 0 {
		data = append(r.carry, p...)
		r.carry = nil
	}
	samples := pcm.DecodeLE(data)
	if len(data)%pcm.BytesPerSample == 1 {
		r.carry = []byte{data[len(data)-1]}
	}
	if len(samples) == 0 {
		return len(p), nil
	}

	if cap(r.buf.Data) < len(samples) {
		r.buf.Data = make([]int, len(samples))
	}
	r.buf.Data = r.buf.Data[:len(samples)]
	for i, s := range samples {
		r.buf.Data[i] = int(s)
	}
	if err := r.encoder.Write(r.buf); err != nil {
		return 0, fmt.Errorf("failed to write WAV data: %w", err)
	}
	return len(p), nil
}

// Close finalizes the WAV header and closes the file. It is safe to call
// more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.encoder.Close(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to finalize WAV: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	return nil
}
