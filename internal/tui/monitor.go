// SPDX-License-Identifier: MIT
//
// Package tui renders a live terminal monitor of the message stream.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tonecast/internal/analysis"
	"tonecast/internal/message"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	answerStyles = map[analysis.Answer]lipgloss.Style{
		analysis.Yes:   lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true),
		analysis.No:    lipgloss.NewStyle().Foreground(lipgloss.Color("#E0464A")).Bold(true),
		analysis.Maybe: lipgloss.NewStyle().Foreground(lipgloss.Color("#E8B931")).Bold(true),
	}
)

// DefaultHistory is the number of messages kept on screen.
const DefaultHistory = 200

var (
	quitKey  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	pauseKey = key.NewBinding(key.WithKeys("p"))
	clearKey = key.NewBinding(key.WithKeys("c"))
)

// messageMsg carries one delivered message into the model.
type messageMsg message.Message

// Model is the monitor's bubbletea model.
type Model struct {
	entries  []message.Message
	history  int
	total    int
	paused   bool
	viewport viewport.Model
	ready    bool
}

// NewModel creates a model keeping history messages.
func NewModel(history int) Model {
	if history <= 0 {
		history = DefaultHistory
	}
	return Model{history: history}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.refresh()

	case messageMsg:
		m.total++
		m.entries = append(m.entries, message.Message(msg))
		if over := len(m.entries) - m.history; over > 0 {
			m.entries = m.entries[over:]
		}
		m.refresh()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, pauseKey):
			m.paused = !m.paused
			m.refresh()
		case key.Matches(msg, clearKey):
			m.entries = nil
			m.refresh()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	if !m.paused {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	title := titleStyle.Render("tonecast monitor")
	summary := infoStyle.Render(fmt.Sprintf("%d messages", m.total))
	if n := len(m.entries); n > 0 {
		last := m.entries[n-1].Classification
		summary += "  " + answerStyles[last.Answer].Render(last.Answer.String()) +
			infoStyle.Render(fmt.Sprintf("  %s  %s", message.FormatFrequency(last.DominantFrequency), last.Color))
	}

	help := "q: Quit • p: Pause scrolling • c: Clear"
	if m.paused {
		help = "[paused] " + help
	}
	return fmt.Sprintf("%s %s\n\n%s\n\n%s", title, summary, m.viewport.View(), dimStyle.Render(help))
}

func (m Model) renderEntries() string {
	if len(m.entries) == 0 {
		return dimStyle.Render("Waiting for messages...")
	}

	var sb strings.Builder
	for _, e := range m.entries {
		c := e.Classification
		sb.WriteString(dimStyle.Render(e.Timestamp.Local().Format("15:04:05.000")))
		sb.WriteString(" ")
		sb.WriteString(answerStyles[c.Answer].Render(fmt.Sprintf("%-5s", c.Answer)))
		sb.WriteString(" ")
		sb.WriteString(e.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// monitorBacklog bounds the messages queued while the program starts or
// redraws. Deliveries beyond it are dropped.
const monitorBacklog = 64

// ErrMonitorBacklog is returned by Deliver when the queue is full.
var ErrMonitorBacklog = errors.New("monitor backlog full, message dropped")

// Monitor runs the model as a program and feeds it as a sink. Deliver
// never waits for the program: messages are queued and forwarded by Run.
type Monitor struct {
	program *tea.Program
	inbox   chan message.Message
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewMonitor creates a monitor on the alternate screen. Extra program
// options are appended, which tests use to swap input and output.
func NewMonitor(history int, opts ...tea.ProgramOption) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	return &Monitor{
		program: tea.NewProgram(NewModel(history), opts...),
		inbox:   make(chan message.Message, monitorBacklog),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Name implements dispatch.Sink.
func (m *Monitor) Name() string { return "monitor" }

// Deliver queues msg for the program. Once the monitor has exited it is a
// no-op.
func (m *Monitor) Deliver(_ context.Context, msg message.Message) error {
	if m.ctx.Err() != nil {
		return nil
	}
	select {
	case m.inbox <- msg:
		return nil
	default:
		return ErrMonitorBacklog
	}
}

// Run blocks until the user quits or Close is called.
func (m *Monitor) Run() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()
	defer m.cancel()

	go m.forward()
	_, err := m.program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.isClosed() {
		return nil
	}
	return err
}

// forward hands queued messages to the program until the monitor stops.
func (m *Monitor) forward() {
	for {
		select {
		case msg := <-m.inbox:
			m.program.Send(messageMsg(msg))
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close asks a running program to exit and stops the monitor. It never
// waits for an event loop that has not started.
func (m *Monitor) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	if started {
		m.program.Quit()
	}
	m.cancel()
	return nil
}
