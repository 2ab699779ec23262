// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"tonecast/internal/analysis"
	"tonecast/internal/message"

	tea "github.com/charmbracelet/bubbletea"
)

func testMessage(text string, answer analysis.Answer) messageMsg {
	return messageMsg(message.Message{
		Text:      text,
		Timestamp: time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		Classification: analysis.Classification{
			DominantFrequency: 1500, PeakMagnitude: 90, Answer: answer, Color: "Violet",
		},
	})
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model, cmd
}

func sized(t *testing.T, history int) Model {
	t.Helper()
	m, _ := update(t, NewModel(history), tea.WindowSizeMsg{Width: 120, Height: 40})
	return m
}

func TestModelBeforeResize(t *testing.T) {
	if got := NewModel(0).View(); got != "Initializing..." {
		t.Errorf("View() = %q", got)
	}
}

func TestModelShowsMessages(t *testing.T) {
	m := sized(t, 10)
	if !strings.Contains(m.View(), "Waiting for messages") {
		t.Error("empty monitor should say it is waiting")
	}

	m, _ = update(t, m, testMessage("first message", analysis.No))
	m, _ = update(t, m, testMessage("second message", analysis.Yes))

	view := m.View()
	for _, want := range []string{"first message", "second message", "2 messages", "1500.0 Hz"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelHistoryIsBounded(t *testing.T) {
	m := sized(t, 3)
	for i := range 5 {
		m, _ = update(t, m, testMessage(strings.Repeat("x", i+1), analysis.Maybe))
	}
	if len(m.entries) != 3 {
		t.Fatalf("kept %d entries, want 3", len(m.entries))
	}
	if m.entries[0].Text != "xxx" || m.total != 5 {
		t.Errorf("oldest = %q, total = %d", m.entries[0].Text, m.total)
	}
}

func TestModelKeys(t *testing.T) {
	m := sized(t, 10)
	m, _ = update(t, m, testMessage("hello", analysis.Yes))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	if !m.paused || !strings.Contains(m.View(), "[paused]") {
		t.Error("p should pause scrolling")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if len(m.entries) != 0 {
		t.Error("c should clear the history")
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestMonitorLifecycle(t *testing.T) {
	mon := NewMonitor(10, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	if mon.Name() != "monitor" {
		t.Errorf("Name() = %q", mon.Name())
	}

	done := make(chan error, 1)
	go func() { done <- mon.Run() }()

	if err := mon.Deliver(context.Background(), message.Message(testMessage("live", analysis.Yes))); err != nil {
		t.Fatal(err)
	}
	_ = mon.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not exit after Close")
	}

	// Delivering after exit must not block.
	if err := mon.Deliver(context.Background(), message.Message(testMessage("late", analysis.No))); err != nil {
		t.Fatal(err)
	}
}

func TestMonitorNeverRunDoesNotBlock(t *testing.T) {
	mon := NewMonitor(10, tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())
	msg := message.Message(testMessage("queued", analysis.Maybe))

	delivered := make(chan error, 1)
	go func() {
		var last error
		for i := 0; i < monitorBacklog+3; i++ {
			last = mon.Deliver(context.Background(), msg)
		}
		delivered <- last
	}()
	select {
	case err := <-delivered:
		if !errors.Is(err, ErrMonitorBacklog) {
			t.Errorf("Deliver past the backlog = %v, want ErrMonitorBacklog", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver blocked on a monitor that never ran")
	}

	closed := make(chan struct{})
	go func() {
		_ = mon.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a monitor that never ran")
	}

	if err := mon.Deliver(context.Background(), msg); err != nil {
		t.Errorf("Deliver after Close = %v, want nil", err)
	}
	if err := mon.Run(); err != nil {
		t.Errorf("Run after Close = %v, want nil", err)
	}
}
