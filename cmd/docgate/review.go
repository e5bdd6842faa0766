package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/assemble"
	"github.com/jingkaihe/docgate/pkg/facts"
	"github.com/jingkaihe/docgate/pkg/gaps"
	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/store"
	"github.com/jingkaihe/docgate/pkg/tui"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// ReviewConfig holds the configuration for the review command
type ReviewConfig struct {
	Skill          string
	Facts          []string
	Sections       []string
	Language       string
	Title          string
	Output         string
	Format         string
	NonInteractive bool
	TUI            bool
}

// NewReviewConfig creates a new ReviewConfig with default values
func NewReviewConfig() *ReviewConfig {
	return &ReviewConfig{
		Format: "markdown",
	}
}

// Validate checks the review configuration
func (c *ReviewConfig) Validate() error {
	if c.Skill == "" {
		return errors.New("--skill is required")
	}
	if c.TUI && c.NonInteractive {
		return errors.New("--tui and --non-interactive are mutually exclusive")
	}
	if c.Language != "" && c.Language != "en" && c.Language != "de" {
		return errors.Errorf("unsupported language %q, expected en or de", c.Language)
	}
	return validateFormat(c.Format)
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Draft a document and review it section by section",
	Long: `Start a review run: every section of the skill is drafted from the facts, scored, and
failing sections are turned into questions. In interactive mode the questions are asked
on the terminal until every section passes or is accepted with "proceed anyway". With
--non-interactive the run stops at the first round of questions and can be continued
with "docgate resume".

Examples:
  docgate review --skill hackathon-debrief --facts notes.md --facts transcript.html
  docgate review --skill scope-document --facts 'meetings/*.md' --sections 'risk*' -o scope.md
  docgate review --skill kickoff-presentation --facts facts.yaml --non-interactive`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getReviewConfigFromFlags(cmd)
		if err := runReviewCommand(ctx, config); err != nil {
			presenter.Error(err, "Review failed")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewReviewConfig()
	reviewCmd.Flags().StringP("skill", "s", defaults.Skill, "Skill that defines the document sections")
	reviewCmd.Flags().StringSliceP("facts", "f", defaults.Facts, "Fact files or globs (markdown, html, yaml, json)")
	reviewCmd.Flags().StringSlice("sections", defaults.Sections, "Only draft sections matching these glob patterns")
	reviewCmd.Flags().String("language", defaults.Language, "Output language (en or de), defaults to the skill language")
	reviewCmd.Flags().String("title", defaults.Title, "Document title, defaults to the skill name")
	reviewCmd.Flags().StringP("output", "o", defaults.Output, "Write the finalized document to this file instead of stdout")
	reviewCmd.Flags().String("format", defaults.Format, "Document format: markdown or html")
	reviewCmd.Flags().Bool("non-interactive", defaults.NonInteractive, "Stop when input is needed instead of prompting")
	reviewCmd.Flags().Bool("tui", defaults.TUI, "Answer questions in a full-screen terminal UI")
}

func getReviewConfigFromFlags(cmd *cobra.Command) *ReviewConfig {
	config := NewReviewConfig()
	if v, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = v
	}
	if v, err := cmd.Flags().GetStringSlice("facts"); err == nil {
		config.Facts = v
	}
	if v, err := cmd.Flags().GetStringSlice("sections"); err == nil {
		config.Sections = v
	}
	if v, err := cmd.Flags().GetString("language"); err == nil {
		config.Language = v
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
	if v, err := cmd.Flags().GetBool("non-interactive"); err == nil {
		config.NonInteractive = v
	}
	if v, err := cmd.Flags().GetBool("tui"); err == nil {
		config.TUI = v
	}
	return config
}

func runReviewCommand(ctx context.Context, config *ReviewConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	skill, err := findSkill(ctx, config.Skill)
	if err != nil {
		return err
	}
	templates, err := skill.FilterSections(config.Sections...)
	if err != nil {
		return err
	}
	factSet, err := facts.Load(config.Facts...)
	if err != nil {
		return err
	}
	language := config.Language
	if language == "" {
		language = skill.Language
	}

	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	controller, err := newController(ctx, st, skill.Content)
	if err != nil {
		return err
	}

	state := controller.NewRun(skill.Name, language, templates, factSet)
	ctx = logger.WithRun(ctx, state.ID)
	logger.G(ctx).WithField("sections", len(templates)).WithField("facts", factSet.Len()).Info("starting review")
	presenter.Info(fmt.Sprintf("Run %s: drafting %d section(s) of %s", state.ID, len(templates), skill.Name))

	if config.NonInteractive {
		if err := controller.Advance(ctx, state); err != nil {
			return err
		}
		return reportState(state, controller.Summary(state), config.Title, config.Format, config.Output)
	}

	err = controller.Run(ctx, state, newAsker(config.TUI))
	if errors.Is(err, reviewtypes.ErrRunCancelled) {
		presenter.Warning(fmt.Sprintf("Run %s cancelled, no document was produced", state.ID))
		return nil
	}
	if err != nil {
		return err
	}
	return reportState(state, controller.Summary(state), config.Title, config.Format, config.Output)
}

// reportState prints where a run stands and writes the document once it
// is finalized.
func reportState(state *reviewtypes.ReviewState, summary reviewtypes.ReviewSummary, title, format, output string) error {
	presenter.ReviewSummary(summary)

	switch state.Phase {
	case reviewtypes.PhaseNeedsInput:
		presenter.Separator()
		presenter.Questions(state.Questions)
		presenter.Info(fmt.Sprintf("\nAnswer with: docgate resume %s --answer <section>=<text> (or --override-section <section>)", state.ID))
		return nil
	case reviewtypes.PhaseFinalized:
		if err := writeDocument(state, title, format, output); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("Run %s finalized", state.ID))
		return nil
	default:
		presenter.Info(fmt.Sprintf("Run %s is %s", state.ID, state.Phase))
		return nil
	}
}

func validateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", "markdown", "md", "html":
		return nil
	default:
		return errors.Errorf("unsupported format %q, expected markdown or html", format)
	}
}

// writeDocument assembles a finalized run and writes it in the given format
func writeDocument(state *reviewtypes.ReviewState, title, format, output string) error {
	doc, err := assemble.FromState(state, title)
	if err != nil {
		return err
	}

	content := assemble.Markdown(doc)
	if strings.ToLower(format) == "html" {
		if content, err = assemble.HTML(doc); err != nil {
			return err
		}
	}
	if err := writeOutput(output, content); err != nil {
		return err
	}
	if output != "" && output != "-" {
		presenter.Success(fmt.Sprintf("Document written to %s", output))
	}
	return nil
}

// newAsker picks the full-screen or the line-based question flow
func newAsker(fullScreen bool) review.Asker {
	if fullScreen {
		return tui.NewAsker()
	}
	return newTerminalAsker(presenter.Default())
}

// cancelAnswer aborts the run from the terminal prompt
const cancelAnswer = ":cancel"

// maxSilentRounds bounds consecutive rounds without a single answer, so a
// closed stdin cannot loop forever.
const maxSilentRounds = 3

// terminalAsker collects answers to gap questions on the terminal
type terminalAsker struct {
	presenter presenter.Presenter
	silent    int
}

func newTerminalAsker(p presenter.Presenter) *terminalAsker {
	return &terminalAsker{presenter: p}
}

// Ask shows the summary and asks every question in turn. A blank answer
// skips the question, the override phrase accepts the section as is and
// ":cancel" aborts the run.
func (a *terminalAsker) Ask(_ context.Context, summary reviewtypes.ReviewSummary, questions []reviewtypes.GapQuestion) (reviewtypes.Response, error) {
	a.presenter.ReviewSummary(summary)
	a.presenter.Separator()
	a.presenter.Info(fmt.Sprintf("Answer each question, %q to accept the section as is, %q to abort.", gaps.OverrideAnswer, cancelAnswer))

	var resp reviewtypes.Response
	for i, q := range questions {
		a.presenter.Questions([]reviewtypes.GapQuestion{q})
		answer := a.presenter.Prompt(fmt.Sprintf("(%d/%d) %s", i+1, len(questions), q.Section))
		switch {
		case answer == "":
			continue
		case strings.EqualFold(answer, cancelAnswer):
			return reviewtypes.Response{Cancel: true}, nil
		}
		if resp.Answers == nil {
			resp.Answers = make(map[string]string)
		}
		resp.Answers[q.SectionID] = answer
	}

	if resp.Empty() {
		a.silent++
		if a.silent >= maxSilentRounds {
			return resp, errors.New("no answers received")
		}
		a.presenter.Warning("No answers given")
		return resp, nil
	}
	a.silent = 0
	return resp, nil
}
