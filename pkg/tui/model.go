// Package tui implements the full-screen terminal flow for answering the
// gap questions of a review round.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jingkaihe/docgate/pkg/gaps"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

const (
	statusReady       = "Ready"
	statusConfirmQuit = "Press Ctrl+C again to cancel the run"
)

// Model answers one round of gap questions, one question at a time
type Model struct {
	summary   reviewtypes.ReviewSummary
	questions []reviewtypes.GapQuestion
	index     int
	answers   map[string]string

	textarea      textarea.Model
	width         int
	height        int
	statusMessage string

	done      bool
	cancelled bool

	ctrlCPressCount    int
	lastCtrlCPressTime time.Time
	now                func() time.Time

	titleStyle    lipgloss.Style
	questionStyle lipgloss.Style
	hintStyle     lipgloss.Style
	statusStyle   lipgloss.Style
}

// NewModel creates a model for the given round
func NewModel(summary reviewtypes.ReviewSummary, questions []reviewtypes.GapQuestion) Model {
	ta := textarea.New()
	ta.Placeholder = "Type your answer..."
	ta.Focus()
	ta.SetWidth(80)
	ta.SetHeight(4)
	ta.ShowLineNumbers = false
	ta.Prompt = "❯ "
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ta.FocusedStyle.Base = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	return Model{
		summary:       summary,
		questions:     questions,
		answers:       make(map[string]string),
		textarea:      ta,
		statusMessage: statusReady,
		now:           time.Now,
		titleStyle:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#7aa2f7", Dark: "#7aa2f7"}),
		questionStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		hintStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true),
		statusStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textarea.Blink
}

type resetCtrlCMsg struct{}

// resetCtrlCCmd resets the Ctrl+C counter after a timeout
func resetCtrlCCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return resetCtrlCMsg{}
	})
}

// Update handles key presses and window resizes
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case resetCtrlCMsg:
		if m.statusMessage == statusConfirmQuit {
			m.statusMessage = statusReady
			m.ctrlCPressCount = 0
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if msg.Width > 4 {
			m.textarea.SetWidth(msg.Width - 4)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			now := m.now()
			if m.ctrlCPressCount > 0 && now.Sub(m.lastCtrlCPressTime) < 2*time.Second {
				m.cancelled = true
				m.done = true
				return m, tea.Quit
			}
			m.ctrlCPressCount = 1
			m.lastCtrlCPressTime = now
			m.statusMessage = statusConfirmQuit
			return m, resetCtrlCCmd()
		case tea.KeyCtrlS:
			return m.answer(strings.TrimSpace(m.textarea.Value()))
		case tea.KeyCtrlO:
			return m.answer(gaps.OverrideAnswer)
		case tea.KeyTab:
			return m.answer("")
		case tea.KeyEsc:
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// answer records the answer to the current question and moves on. An
// empty answer skips the question.
func (m Model) answer(text string) (tea.Model, tea.Cmd) {
	if m.index >= len(m.questions) {
		m.done = true
		return m, tea.Quit
	}

	q := m.questions[m.index]
	if text != "" {
		m.answers[q.SectionID] = text
	} else {
		delete(m.answers, q.SectionID)
	}
	m.textarea.Reset()
	m.index++
	m.statusMessage = statusReady

	if m.index >= len(m.questions) {
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

// Current returns the question being answered
func (m Model) Current() (reviewtypes.GapQuestion, bool) {
	if m.index >= len(m.questions) {
		return reviewtypes.GapQuestion{}, false
	}
	return m.questions[m.index], true
}

// Done reports whether the round is over
func (m Model) Done() bool {
	return m.done
}

// Response returns what the user entered. A cancelled round yields a
// cancel response.
func (m Model) Response() reviewtypes.Response {
	if m.cancelled {
		return reviewtypes.Response{Cancel: true}
	}
	var resp reviewtypes.Response
	if len(m.answers) > 0 {
		resp.Answers = make(map[string]string, len(m.answers))
		for k, v := range m.answers {
			resp.Answers[k] = v
		}
	}
	return resp
}
