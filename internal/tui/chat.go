package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/avezhov/gutenberg-qa/internal/core/domain"
	"github.com/avezhov/gutenberg-qa/internal/core/ports"
)

// Backend is the TUI-facing subset of the API client.
type Backend interface {
	Status(ctx context.Context) (ports.WorkflowStatus, error)
	Query(ctx context.Context, question string) (*domain.QueryResult, error)
}

type turn struct {
	question string
	answer   domain.Answer
	err      error
}

// Model is the Bubble Tea model for the chat front end.
type Model struct {
	backend  Backend
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	status   string
	strategy string
	waiting  bool
	ready    bool
}

func New(backend Backend) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the indexed books and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		backend:  backend,
		input:    ti,
		viewport: vp,
		status:   "Connecting...",
	}
}

type statusMsg struct {
	status ports.WorkflowStatus
	err    error
}

type answerMsg struct {
	question string
	result   *domain.QueryResult
	err      error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchStatus())
}

func (m Model) fetchStatus() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status, err := backend.Status(ctx)
		return statusMsg{status: status, err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		result, err := backend.Query(ctx, question)
		return answerMsg{question: question, result: result, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = maxInt(20, msg.Width)
		m.viewport.Height = maxInt(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.status = "API unreachable: " + msg.err.Error()
			return m, nil
		}
		m.strategy = msg.status.StrategyID
		if !msg.status.Initialized {
			m.status = "Not initialized: run the flow pipeline first."
		} else {
			m.status = fmt.Sprintf("Ready. Active strategy: %s", m.strategy)
		}
		return m, nil

	case answerMsg:
		m.waiting = false
		t := turn{question: msg.question, err: msg.err}
		if msg.result != nil {
			t.answer = msg.result.Answer
			m.strategy = msg.result.Strategy
		}
		m.turns = append(m.turns, t)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = fmt.Sprintf("Answered with %s", m.strategy)
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			question := strings.TrimSpace(m.input.Value())
			if question != "" && !m.waiting {
				m.waiting = true
				m.status = "Thinking..."
				m.input.Reset()
				return m, m.ask(question)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Gutenberg QA")
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "Ask a question about the indexed books."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: " + t.question))
		b.WriteString("\n")
		if t.err != nil {
			b.WriteString(errorStyle.Render("Error: " + t.err.Error()))
			continue
		}
		b.WriteString(t.answer.Text)
		if sources := renderSources(t.answer); sources != "" {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render(sources))
		}
	}
	return b.String()
}

func renderSources(answer domain.Answer) string {
	if len(answer.Sources) == 0 {
		return ""
	}
	cited := make(map[string]bool, len(answer.CitedChunkIDs))
	for _, id := range answer.CitedChunkIDs {
		cited[id] = true
	}

	var lines []string
	for i, sc := range answer.Sources {
		marker := " "
		if cited[sc.Chunk.ID] {
			marker = "*"
		}
		lines = append(lines, fmt.Sprintf("%s [%d] %s (%s, score %.3f)", marker, i+1, sc.Chunk.Title, sc.Chunk.Source, sc.Score))
	}
	return strings.Join(lines, "\n")
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
