// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"tonecast/internal/message"
)

// LogFile appends one line per message to a durable log.
type LogFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenLogFile opens path for appending, creating it if needed.
func OpenLogFile(path string) (*LogFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open message log: %w", err)
	}
	return &LogFile{path: path, f: f}, nil
}

// Name implements Sink.
func (l *LogFile) Name() string { return "logfile" }

// Path returns the log location.
func (l *LogFile) Path() string { return l.path }

// Deliver appends the formatted line for msg.
func (l *LogFile) Deliver(_ context.Context, msg message.Message) error {
	line := FormatLogLine(msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	if _, err := l.f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Dump returns the whole log, most recent line last.
func (l *LogFile) Dump() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message log: %w", err)
	}
	return data, nil
}

// Close closes the file.
func (l *LogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// lineBreaks flattens text so a message never spans several records.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// FormatLogLine renders
// "<timestamp> | <frequency> | <answer> | <color> | <text>\n".
func FormatLogLine(msg message.Message) string {
	c := msg.Classification
	return fmt.Sprintf("%s | %s | %s | %s | %s\n",
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
		message.FormatFrequency(c.DominantFrequency),
		c.Answer,
		c.Color,
		lineBreaks.Replace(msg.Text),
	)
}
