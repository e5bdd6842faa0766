package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/store"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// RunsListConfig holds the filters for listing runs
type RunsListConfig struct {
	Skill string
	Phase string
	Limit int
	JSON  bool
}

// NewRunsListConfig creates a new RunsListConfig with default values
func NewRunsListConfig() *RunsListConfig {
	return &RunsListConfig{Limit: 20}
}

// RunsShowConfig holds the options for showing a run
type RunsShowConfig struct {
	JSON    bool
	Audit   bool
	Diff    string
	From    int
	To      int
	Details bool
}

// NewRunsShowConfig creates a new RunsShowConfig with default values
func NewRunsShowConfig() *RunsShowConfig {
	return &RunsShowConfig{From: 1}
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored review runs",
	Long:  `List, show and delete review runs kept in the run store.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review runs, most recent first",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getRunsListConfigFromFlags(cmd)
		if err := listRunsCmd(ctx, config); err != nil {
			presenter.Error(err, "Failed to list runs")
			os.Exit(1)
		}
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the sections, scores and open questions of a run",
	Long: `Show a run's summary table and open questions.

Examples:
  docgate runs show 3f2a
  docgate runs show 3f2a --audit
  docgate runs show 3f2a --diff goal --from 1 --to 2
  docgate runs show 3f2a --json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getRunsShowConfigFromFlags(cmd)
		if err := showRunCmd(ctx, args[0], config); err != nil {
			presenter.Error(err, "Failed to show run")
			os.Exit(1)
		}
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete review runs",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if err := deleteRunsCmd(ctx, args); err != nil {
			presenter.Error(err, "Failed to delete runs")
			os.Exit(1)
		}
	},
}

func init() {
	listDefaults := NewRunsListConfig()
	runsListCmd.Flags().String("skill", listDefaults.Skill, "Only runs of this skill")
	runsListCmd.Flags().String("phase", listDefaults.Phase, "Only runs in this phase")
	runsListCmd.Flags().Int("limit", listDefaults.Limit, "Maximum number of runs, 0 for all")
	runsListCmd.Flags().Bool("json", listDefaults.JSON, "Print the runs as JSON")

	showDefaults := NewRunsShowConfig()
	runsShowCmd.Flags().Bool("json", showDefaults.JSON, "Print the full run state as JSON")
	runsShowCmd.Flags().Bool("audit", showDefaults.Audit, "Print the audit log")
	runsShowCmd.Flags().Bool("details", showDefaults.Details, "Print per-dimension scores of every section")
	runsShowCmd.Flags().String("diff", showDefaults.Diff, "Print a unified diff of this section between two attempts")
	runsShowCmd.Flags().Int("from", showDefaults.From, "First attempt for --diff")
	runsShowCmd.Flags().Int("to", showDefaults.To, "Second attempt for --diff, 0 for the latest")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

func getRunsListConfigFromFlags(cmd *cobra.Command) *RunsListConfig {
	config := NewRunsListConfig()
	if v, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = v
	}
	if v, err := cmd.Flags().GetString("phase"); err == nil {
		config.Phase = v
	}
	if v, err := cmd.Flags().GetInt("limit"); err == nil {
		config.Limit = v
	}
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	return config
}

func getRunsShowConfigFromFlags(cmd *cobra.Command) *RunsShowConfig {
	config := NewRunsShowConfig()
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	if v, err := cmd.Flags().GetBool("audit"); err == nil {
		config.Audit = v
	}
	if v, err := cmd.Flags().GetBool("details"); err == nil {
		config.Details = v
	}
	if v, err := cmd.Flags().GetString("diff"); err == nil {
		config.Diff = v
	}
	if v, err := cmd.Flags().GetInt("from"); err == nil {
		config.From = v
	}
	if v, err := cmd.Flags().GetInt("to"); err == nil {
		config.To = v
	}
	return config
}

func listRunsCmd(ctx context.Context, config *RunsListConfig) error {
	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	runs, err := st.List(ctx, store.QueryOptions{
		Skill: config.Skill,
		Phase: reviewtypes.Phase(config.Phase),
		Limit: config.Limit,
	})
	if err != nil {
		return err
	}

	if config.JSON {
		if runs == nil {
			runs = []reviewtypes.Summary{}
		}
		data, err := json.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(runs) == 0 {
		presenter.Info("No runs found")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSKILL\tPHASE\tROUND\tPASSED\tFAILED\tOVERRIDDEN\tUPDATED")
	fmt.Fprintln(tw, "--\t-----\t-----\t-----\t------\t------\t----------\t-------")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d\t%d\t%d\t%s\n",
			run.ID, run.Skill, run.Phase, run.Round,
			run.Passed, run.Sections, run.Failed, run.Overridden,
			formatTime(run.UpdatedAt))
	}
	return tw.Flush()
}

func showRunCmd(ctx context.Context, id string, config *RunsShowConfig) error {
	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	state, err := st.Load(ctx, id)
	if err != nil {
		return err
	}

	if config.JSON {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if config.Diff != "" {
		sec, ok := state.Section(config.Diff)
		if !ok {
			return errors.Wrapf(reviewtypes.ErrUnknownSection, "run %s has no section %q", state.ID, config.Diff)
		}
		history, err := store.SectionHistory(ctx, st, state, sec.ID())
		if err != nil {
			return err
		}
		indexed := *sec
		indexed.History = history
		diff, err := review.Diff(&indexed, config.From, config.To)
		if err != nil {
			return err
		}
		if diff == "" {
			presenter.Info("No changes between the two attempts")
			return nil
		}
		fmt.Print(diff)
		return nil
	}

	// the summary only needs the scorer notes, never the generator
	presenter.ReviewSummary(review.NewController(nil).Summary(state))
	if config.Details {
		printSectionDetails(state)
	}
	if len(state.Questions) > 0 {
		presenter.Separator()
		presenter.Questions(state.Questions)
	}
	if config.Audit {
		presenter.Separator()
		printAudit(state.Audit)
	}
	return nil
}

func printSectionDetails(state *reviewtypes.ReviewState) {
	for _, sec := range state.Sections {
		rev, ok := sec.Latest()
		if !ok {
			continue
		}
		presenter.Separator()
		presenter.Info(fmt.Sprintf("%s (attempt %d)", sec.Name(), rev.Attempt))
		for _, sc := range rev.Scores.Scores {
			presenter.Info(fmt.Sprintf("  %-20s %2d/%d  %s", sc.Dimension, sc.Value, reviewtypes.MaxDimensionScore, sc.Justification))
		}
	}
}

func printAudit(entries []reviewtypes.AuditEntry) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tROUND\tSECTION\tEVENT\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", formatTime(e.At), e.Round, orDash(e.Section), e.Event, orDash(e.Detail))
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func deleteRunsCmd(ctx context.Context, ids []string) error {
	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	for _, id := range ids {
		if err := st.Delete(ctx, id); err != nil {
			return errors.Wrapf(err, "failed to delete run %s", id)
		}
		presenter.Success(fmt.Sprintf("Deleted run %s", id))
	}
	return nil
}
