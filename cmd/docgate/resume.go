package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/store"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// ResumeConfig holds the configuration for the resume command
type ResumeConfig struct {
	Answers          []string
	Facts            []string
	Override         bool
	OverrideSections []string
	Cancel           bool
	AnswersFile      string
	Interactive      bool
	TUI              bool
	Title            string
	Output           string
	Format           string
}

// NewResumeConfig creates a new ResumeConfig with default values
func NewResumeConfig() *ResumeConfig {
	return &ResumeConfig{
		Format: "markdown",
	}
}

// Response builds the user response from the answers file and the flags.
// Flags win over the file.
func (c *ResumeConfig) Response() (reviewtypes.Response, error) {
	var resp reviewtypes.Response
	if c.AnswersFile != "" {
		var err error
		if resp, err = loadResponseFile(c.AnswersFile); err != nil {
			return resp, err
		}
	}

	answers, err := parseKeyValues(c.Answers)
	if err != nil {
		return resp, errors.Wrap(err, "invalid --answer")
	}
	facts, err := parseKeyValues(c.Facts)
	if err != nil {
		return resp, errors.Wrap(err, "invalid --fact")
	}
	resp = mergeResponse(resp, answers, facts)

	resp.Override = resp.Override || c.Override
	resp.OverrideSections = append(resp.OverrideSections, c.OverrideSections...)
	resp.Cancel = resp.Cancel || c.Cancel
	return resp, nil
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Answer the open questions of a run and continue it",
	Long: `Continue a run that is waiting for input. Answers are given per section, facts per
field key. Failing sections can be accepted as is with --override-section or --override.
Without any answers and with --interactive the questions are asked on the terminal.
A run interrupted while drafting or regenerating is advanced without any answers.

Examples:
  docgate resume 3f2a --answer goal="A routing prototype for Acme Logistics"
  docgate resume 3f2a --fact budget="EUR 40k" --override-section risks
  docgate resume 3f2a --answers-file answers.yaml
  docgate resume 3f2a --interactive
  docgate resume 3f2a --cancel`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getResumeConfigFromFlags(cmd)
		if err := runResumeCommand(ctx, args[0], config); err != nil {
			presenter.Error(err, "Failed to resume run")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewResumeConfig()
	resumeCmd.Flags().StringArrayP("answer", "a", defaults.Answers, "Answer for a section as section=text (repeatable)")
	resumeCmd.Flags().StringArray("fact", defaults.Facts, "Fact value as key=value (repeatable)")
	resumeCmd.Flags().Bool("override", defaults.Override, "Accept every failing section as is")
	resumeCmd.Flags().StringSlice("override-section", defaults.OverrideSections, "Accept the named failing sections as is")
	resumeCmd.Flags().Bool("cancel", defaults.Cancel, "Cancel the run and discard its sections")
	resumeCmd.Flags().String("answers-file", defaults.AnswersFile, "YAML or JSON file with answers, facts and overrides")
	resumeCmd.Flags().BoolP("interactive", "i", defaults.Interactive, "Ask the open questions on the terminal")
	resumeCmd.Flags().Bool("tui", defaults.TUI, "Ask the open questions in a full-screen terminal UI")
	resumeCmd.Flags().String("title", defaults.Title, "Document title once finalized")
	resumeCmd.Flags().StringP("output", "o", defaults.Output, "Write the finalized document to this file instead of stdout")
	resumeCmd.Flags().String("format", defaults.Format, "Document format: markdown or html")
}

func getResumeConfigFromFlags(cmd *cobra.Command) *ResumeConfig {
	config := NewResumeConfig()
	if v, err := cmd.Flags().GetStringArray("answer"); err == nil {
		config.Answers = v
	}
	if v, err := cmd.Flags().GetStringArray("fact"); err == nil {
		config.Facts = v
	}
	if v, err := cmd.Flags().GetBool("override"); err == nil {
		config.Override = v
	}
	if v, err := cmd.Flags().GetStringSlice("override-section"); err == nil {
		config.OverrideSections = v
	}
	if v, err := cmd.Flags().GetBool("cancel"); err == nil {
		config.Cancel = v
	}
	if v, err := cmd.Flags().GetString("answers-file"); err == nil {
		config.AnswersFile = v
	}
	if v, err := cmd.Flags().GetBool("interactive"); err == nil {
		config.Interactive = v
	}
	if v, err := cmd.Flags().GetBool("tui"); err == nil {
		config.TUI = v
		config.Interactive = config.Interactive || v
	}
	if v, err := cmd.Flags().GetString("title"); err == nil {
		config.Title = v
	}
	if v, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = v
	}
	if v, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = v
	}
	return config
}

func runResumeCommand(ctx context.Context, id string, config *ResumeConfig) error {
	if err := validateFormat(config.Format); err != nil {
		return err
	}
	resp, err := config.Response()
	if err != nil {
		return err
	}
	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	state, err := st.Load(ctx, id)
	if err != nil {
		return err
	}
	ctx = logger.WithRun(ctx, state.ID)
	if resp.Empty() && !config.Interactive && !state.Phase.InProgress() {
		return errors.New("nothing to apply: pass --answer, --fact, --override, --cancel or --interactive")
	}

	controller, err := newController(ctx, st, styleGuideFor(ctx, state.Skill))
	if err != nil {
		return err
	}

	if resp.Cancel {
		if err := controller.Cancel(ctx, state); err != nil {
			return err
		}
		presenter.Warning(fmt.Sprintf("Run %s cancelled, no document was produced", state.ID))
		return nil
	}

	if !resp.Empty() || state.Phase.InProgress() {
		if err := controller.Resume(ctx, state, resp); err != nil {
			return err
		}
	}
	if config.Interactive {
		err := controller.Run(ctx, state, newAsker(config.TUI))
		if errors.Is(err, reviewtypes.ErrRunCancelled) {
			presenter.Warning(fmt.Sprintf("Run %s cancelled, no document was produced", state.ID))
			return nil
		}
		if err != nil {
			return err
		}
	}

	return reportState(state, controller.Summary(state), config.Title, config.Format, config.Output)
}
