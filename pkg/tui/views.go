package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// StatusStyle returns the style a section status is rendered with
func StatusStyle(status reviewtypes.Status) lipgloss.Style {
	switch status {
	case reviewtypes.StatusPassed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	case reviewtypes.StatusOverridden:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	case reviewtypes.StatusFailed:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	}
}

// FormatScore renders a composite against its threshold, "-" when unscored
func FormatScore(row reviewtypes.SummaryRow) string {
	if row.Composite < 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", row.Composite, row.Threshold)
}

// RenderSummary renders the section table with aligned columns
func RenderSummary(summary reviewtypes.ReviewSummary) string {
	nameWidth := len("SECTION")
	for _, row := range summary.Rows {
		if w := lipgloss.Width(row.Section); w > nameWidth {
			nameWidth = w
		}
	}

	cell := func(s string, width int) string {
		return lipgloss.NewStyle().Width(width).Render(s)
	}

	var b strings.Builder
	header := lipgloss.NewStyle().Bold(true)
	b.WriteString(header.Render(cell("SECTION", nameWidth+2) + cell("SCORE", 9) + cell("STATUS", 12) + "WEAKEST"))
	for _, row := range summary.Rows {
		weakest := make([]string, len(row.Weakest))
		for i, d := range row.Weakest {
			weakest[i] = string(d)
		}
		b.WriteString("\n")
		b.WriteString(cell(row.Section, nameWidth+2))
		b.WriteString(cell(FormatScore(row), 9))
		b.WriteString(StatusStyle(row.Status).Width(12).Render(string(row.Status)))
		b.WriteString(strings.Join(weakest, ", "))
	}
	return b.String()
}

// Progress renders the position within the round, e.g. "Question 2 of 5"
func Progress(index, total int) string {
	if index >= total {
		return fmt.Sprintf("All %d questions answered", total)
	}
	return fmt.Sprintf("Question %d of %d", index+1, total)
}

const keyHelp = "Ctrl+S answer • Tab skip • Ctrl+O proceed anyway • Esc finish round • Ctrl+C (twice) cancel run"

// View renders the summary, the current question and the answer box
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.titleStyle.Render(fmt.Sprintf("Run %s, round %d", m.summary.RunID, m.summary.Round)))
	b.WriteString("\n\n")
	b.WriteString(RenderSummary(m.summary))
	b.WriteString("\n\n")

	if q, ok := m.Current(); ok {
		b.WriteString(m.hintStyle.Render(Progress(m.index, len(m.questions))))
		b.WriteString("\n")
		b.WriteString(m.questionStyle.Render(fmt.Sprintf("[%s] %s", q.Section, q.Question)))
		b.WriteString("\n")
		if q.SuggestedPrompt != "" {
			b.WriteString(m.hintStyle.Render("e.g. " + q.SuggestedPrompt))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.textarea.View())
		b.WriteString("\n\n")
	}

	b.WriteString(m.statusStyle.Render(m.statusMessage))
	b.WriteString("  ")
	b.WriteString(m.hintStyle.Render(keyHelp))
	return b.String()
}
