// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tonecast/internal/analysis"
	"tonecast/internal/message"
)

func TestFormatLogLine(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 600000000, time.UTC)
	tests := []struct {
		name string
		msg  message.Message
		want string
	}{
		{
			name: "with frequency",
			msg: message.Message{
				Text: "hello", Timestamp: ts,
				Classification: analysis.Classification{DominantFrequency: 1500, Answer: analysis.Yes, Color: "Violet"},
			},
			want: "2026-01-02T03:04:05.6Z | 1500.0 Hz | YES | Violet | hello\n",
		},
		{
			name: "without frequency",
			msg: message.Message{
				Text: "quiet", Timestamp: ts,
				Classification: analysis.Classification{DominantFrequency: math.NaN(), Answer: analysis.Maybe, Color: "Neutral"},
			},
			want: "2026-01-02T03:04:05.6Z | n/a | MAYBE | Neutral | quiet\n",
		},
		{
			name: "line breaks in text",
			msg: message.Message{
				Text: "one\ntwo\r\nthree\rfour", Timestamp: ts,
				Classification: analysis.Classification{DominantFrequency: 250, Answer: analysis.No, Color: "Red"},
			},
			want: "2026-01-02T03:04:05.6Z | 250.0 Hz | NO | Red | one two three four\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatLogLine(tt.msg)
			if got != tt.want {
				t.Errorf("FormatLogLine() = %q, want %q", got, tt.want)
			}
			if n := strings.Count(got, "\n"); n != 1 {
				t.Errorf("FormatLogLine() produced %d records, want 1", n)
			}
		})
	}
}

func TestLogFileAppendsAndDumps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.log")

	lf, err := OpenLogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	first := testMessage()
	if err := lf.Deliver(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := lf.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening appends rather than truncating.
	lf, err = OpenLogFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer lf.Close()
	second := testMessage()
	second.Text = "second"
	if err := lf.Deliver(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	data, err := lf.Dump()
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.HasSuffix(lines[1], "| second") {
		t.Errorf("most recent line should be last, got %q", lines[1])
	}
}

func TestLogFileDeliverAfterClose(t *testing.T) {
	lf, err := OpenLogFile(filepath.Join(t.TempDir(), "messages.log"))
	if err != nil {
		t.Fatal(err)
	}
	_ = lf.Close()
	if err := lf.Deliver(context.Background(), testMessage()); err == nil {
		t.Error("expected error after Close")
	}
}
