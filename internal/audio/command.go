// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	applog "tonecast/internal/log"
)

const defaultChunkBytes = 4096

// CommandSource runs an external recorder that writes raw signed 16-bit
// little-endian mono PCM to stdout, for example:
//
//	arecord -q -t raw -f S16_LE -c 1 -r 44100
//
// A zero exit status is a clean close.
type CommandSource struct {
	Argv       []string
	ChunkBytes int
}

var _ Source = (*CommandSource)(nil)

// Name identifies the source in logs and metrics.
func (s *CommandSource) Name() string { return "command" }

// Capture starts the process and forwards its stdout until it exits.
func (s *CommandSource) Capture(ctx context.Context, chunks chan<- []byte) error {
	if len(s.Argv) == 0 {
		return errors.New("capture command is empty")
	}
	size := s.ChunkBytes
	if size <= 0 {
		size = defaultChunkBytes
	}

	cmd := exec.CommandContext(ctx, s.Argv[0], s.Argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderr, n: 4096}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to %s stdout: %w", s.Argv[0], err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.Argv[0], err)
	}
	applog.Infof("CommandSource: Started %s (pid %d)", strings.Join(s.Argv, " "), cmd.Process.Pid)

	var readErr error
	for {
		buf := make([]byte, size)
		n, err := stdout.Read(buf)
		if n > 0 {
			if sendErr := send(ctx, chunks, buf[:n]); sendErr != nil {
				readErr = sendErr
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if readErr != nil {
		return fmt.Errorf("failed to read from %s: %w", s.Argv[0], readErr)
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s exited: %w: %s", s.Argv[0], waitErr, msg)
		}
		return fmt.Errorf("%s exited: %w", s.Argv[0], waitErr)
	}
	return nil
}

// limitedWriter keeps at most n bytes and silently discards the rest.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	keep := p
	if len(keep) > l.n {
		keep = keep[:l.n]
	}
	l.n -= len(keep)
	if _, err := l.w.Write(keep); err != nil {
		return 0, err
	}
	return len(p), nil
}
