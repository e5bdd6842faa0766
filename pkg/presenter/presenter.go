// Package presenter provides consistent CLI output for user-facing messages,
// review summaries and gap questions, with color support and quiet mode.
package presenter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// Presenter defines the interface for consistent CLI output
type Presenter interface {
	Error(err error, context string)
	Success(message string)
	Warning(message string)
	Info(message string)
	Section(title string)
	Prompt(question string, options ...string) string
	ReviewSummary(summary reviewtypes.ReviewSummary)
	Questions(questions []reviewtypes.GapQuestion)
	Separator()
	SetQuiet(quiet bool)
	IsQuiet() bool
}

// TerminalPresenter implements Presenter for terminal output
type TerminalPresenter struct {
	output      io.Writer
	errorOutput io.Writer
	input       *bufio.Reader
	colorMode   ColorMode
	quiet       bool
}

// ColorMode represents different color output modes
type ColorMode int

const (
	// ColorAuto lets the color package detect terminal support
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

// New creates a new TerminalPresenter on stdin, stdout and stderr
func New() *TerminalPresenter {
	p := NewWithOptions(os.Stdout, os.Stderr, detectColorMode())
	p.input = bufio.NewReader(os.Stdin)
	return p
}

// NewWithOptions creates a TerminalPresenter with custom writers. Prompts
// read nothing until SetInput is called.
func NewWithOptions(output, errorOutput io.Writer, colorMode ColorMode) *TerminalPresenter {
	switch colorMode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}

	return &TerminalPresenter{
		output:      output,
		errorOutput: errorOutput,
		input:       bufio.NewReader(strings.NewReader("")),
		colorMode:   colorMode,
	}
}

// SetInput replaces the reader prompts read from
func (p *TerminalPresenter) SetInput(r io.Reader) {
	p.input = bufio.NewReader(r)
}

func detectColorMode() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}

	switch os.Getenv("DOCGATE_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error displays an error message to stderr
func (p *TerminalPresenter) Error(err error, context string) {
	if err == nil {
		return
	}

	errorColor := color.New(color.FgRed, color.Bold)
	if context != "" {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %s: %v\n", context, err)
	} else {
		errorColor.Fprintf(p.errorOutput, "[ERROR] %v\n", err)
	}
}

// Success displays a success message
func (p *TerminalPresenter) Success(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.output, "✓ %s\n", message)
}

// Warning displays a warning message
func (p *TerminalPresenter) Warning(message string) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.output, "⚠ %s\n", message)
}

// Info displays an informational message
func (p *TerminalPresenter) Info(message string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.output, "%s\n", message)
}

// Section displays a section header
func (p *TerminalPresenter) Section(title string) {
	if p.quiet {
		return
	}

	headerColor := color.New(color.Bold)
	headerColor.Fprintf(p.output, "%s\n", title)
	headerColor.Fprintf(p.output, "%s\n", strings.Repeat("-", len(title)))
}

// Prompt displays a prompt and reads one line of input. Prompts are shown
// even in quiet mode. EOF yields an empty answer.
func (p *TerminalPresenter) Prompt(question string, options ...string) string {
	promptColor := color.New(color.FgCyan)
	if len(options) > 0 {
		promptColor.Fprintf(p.output, "%s [%s]: ", question, strings.Join(options, "/"))
	} else {
		promptColor.Fprintf(p.output, "%s: ", question)
	}

	response, err := p.input.ReadString('\n')
	if err != nil && response == "" {
		return ""
	}
	return strings.TrimSpace(response)
}

func statusColor(status reviewtypes.Status) *color.Color {
	switch status {
	case reviewtypes.StatusPassed:
		return color.New(color.FgGreen)
	case reviewtypes.StatusOverridden:
		return color.New(color.FgYellow)
	case reviewtypes.StatusFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.Faint)
	}
}

// ReviewSummary renders one row per section: composite against threshold,
// status, weakest dimensions of failing sections and notes.
func (p *TerminalPresenter) ReviewSummary(summary reviewtypes.ReviewSummary) {
	if p.quiet {
		return
	}

	p.Section(fmt.Sprintf("Run %s, round %d (%s)", summary.RunID, summary.Round, summary.Phase))

	w := tabwriter.NewWriter(p.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tSCORE\tSTATUS\tWEAKEST\tNOTES")
	for _, row := range summary.Rows {
		score := "-"
		if row.Composite >= 0 {
			score = fmt.Sprintf("%d/%d", row.Composite, row.Threshold)
		}
		weakest := make([]string, len(row.Weakest))
		for i, d := range row.Weakest {
			weakest[i] = string(d)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			row.Section,
			score,
			statusColor(row.Status).Sprint(row.Status),
			orDash(strings.Join(weakest, ", ")),
			orDash(strings.Join(row.Notes, "; ")),
		)
	}
	w.Flush()
}

// Questions lists pending gap questions with their suggested prompts
func (p *TerminalPresenter) Questions(questions []reviewtypes.GapQuestion) {
	if p.quiet || len(questions) == 0 {
		return
	}

	questionColor := color.New(color.Bold)
	hintColor := color.New(color.Faint)
	for i, q := range questions {
		questionColor.Fprintf(p.output, "%d. [%s] %s\n", i+1, q.Section, q.Question)
		if q.SuggestedPrompt != "" {
			hintColor.Fprintf(p.output, "   e.g. %s\n", q.SuggestedPrompt)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Separator displays a visual separator
func (p *TerminalPresenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.output, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet enables or disables quiet mode
func (p *TerminalPresenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet returns whether quiet mode is enabled
func (p *TerminalPresenter) IsQuiet() bool {
	return p.quiet
}

var defaultPresenter = New()

// Default returns the process-wide presenter
func Default() *TerminalPresenter {
	return defaultPresenter
}

// Error displays an error message using the default presenter instance.
func Error(err error, context string) {
	defaultPresenter.Error(err, context)
}

// Success displays a success message using the default presenter instance.
func Success(message string) {
	defaultPresenter.Success(message)
}

// Warning displays a warning message using the default presenter instance.
func Warning(message string) {
	defaultPresenter.Warning(message)
}

// Info displays an informational message using the default presenter instance.
func Info(message string) {
	defaultPresenter.Info(message)
}

// Section displays a section header using the default presenter instance.
func Section(title string) {
	defaultPresenter.Section(title)
}

// Prompt reads user input using the default presenter instance.
func Prompt(question string, options ...string) string {
	return defaultPresenter.Prompt(question, options...)
}

// ReviewSummary renders a summary table using the default presenter instance.
func ReviewSummary(summary reviewtypes.ReviewSummary) {
	defaultPresenter.ReviewSummary(summary)
}

// Questions lists gap questions using the default presenter instance.
func Questions(questions []reviewtypes.GapQuestion) {
	defaultPresenter.Questions(questions)
}

// Separator displays a visual separator using the default presenter instance.
func Separator() {
	defaultPresenter.Separator()
}

// SetQuiet enables or disables quiet mode for the default presenter instance.
func SetQuiet(quiet bool) {
	defaultPresenter.SetQuiet(quiet)
}

// IsQuiet returns whether quiet mode is enabled for the default presenter instance.
func IsQuiet() bool {
	return defaultPresenter.IsQuiet()
}
