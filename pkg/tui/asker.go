package tui

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// Asker collects answers for each review round in a full-screen program
type Asker struct {
	options []tea.ProgramOption
}

// AskerOption configures an Asker
type AskerOption func(*Asker)

// WithIO runs the program on the given streams instead of the terminal
func WithIO(in io.Reader, out io.Writer) AskerOption {
	return func(a *Asker) {
		a.options = append(a.options, tea.WithInput(in), tea.WithOutput(out))
	}
}

// NewAsker creates an Asker using the alternate screen
func NewAsker(opts ...AskerOption) *Asker {
	a := &Asker{}
	for _, opt := range opts {
		opt(a)
	}
	if len(a.options) == 0 {
		a.options = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return a
}

// Ask runs one round of questions and returns the user's response
func (a *Asker) Ask(ctx context.Context, summary reviewtypes.ReviewSummary, questions []reviewtypes.GapQuestion) (reviewtypes.Response, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, a.options...)
	p := tea.NewProgram(NewModel(summary, questions), opts...)

	result, err := p.Run()
	if err != nil {
		return reviewtypes.Response{}, errors.Wrap(err, "error running program")
	}
	model, ok := result.(Model)
	if !ok {
		return reviewtypes.Response{}, errors.Errorf("unexpected model type %T", result)
	}
	return model.Response(), nil
}
