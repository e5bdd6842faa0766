package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/facts"
	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/review"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// ScoreConfig holds the configuration for the score command
type ScoreConfig struct {
	Skill          string
	Section        string
	Name           string
	Threshold      int
	RequiredFields []string
	Facts          []string
	JSON           bool
	Watch          bool
}

// NewScoreConfig creates a new ScoreConfig with default values
func NewScoreConfig() *ScoreConfig {
	return &ScoreConfig{
		Name:      "Section",
		Threshold: 70,
	}
}

// Validate checks the section selection
func (c *ScoreConfig) Validate() error {
	if c.Skill != "" && c.Section == "" {
		return errors.New("--section is required with --skill")
	}
	if c.Skill == "" && c.Section != "" {
		return errors.New("--section requires --skill")
	}
	if c.Threshold < 0 || c.Threshold > 100 {
		return errors.Errorf("threshold must be between 0 and 100, got %d", c.Threshold)
	}
	return nil
}

var scoreCmd = &cobra.Command{
	Use:   "score <draft.md>",
	Short: "Score a single section draft",
	Long: `Score a section draft on the five confidence dimensions without starting a run.

The section template comes either from a skill (--skill and --section) or from the
inline flags (--name, --threshold, --required). Facts are loaded from --facts files.

Examples:
  docgate score goal.md --skill hackathon-debrief --section goal --facts notes.md
  docgate score draft.md --name Budget --threshold 80 --required budget --facts facts.yaml
  docgate score draft.md --skill scope-document --section risks --watch`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getScoreConfigFromFlags(cmd)
		if err := runScoreCommand(ctx, args[0], config); err != nil {
			presenter.Error(err, "Failed to score draft")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewScoreConfig()
	scoreCmd.Flags().String("skill", defaults.Skill, "Skill providing the section template")
	scoreCmd.Flags().String("section", defaults.Section, "Section id or name within the skill")
	scoreCmd.Flags().String("name", defaults.Name, "Section name when no skill is given")
	scoreCmd.Flags().Int("threshold", defaults.Threshold, "Passing threshold when no skill is given")
	scoreCmd.Flags().StringSlice("required", defaults.RequiredFields, "Required fact keys when no skill is given")
	scoreCmd.Flags().StringSlice("facts", defaults.Facts, "Fact files or globs (markdown, html, yaml, json)")
	scoreCmd.Flags().Bool("json", defaults.JSON, "Print the evaluation as JSON")
	scoreCmd.Flags().BoolP("watch", "w", defaults.Watch, "Re-score whenever the draft changes")
}

func getScoreConfigFromFlags(cmd *cobra.Command) *ScoreConfig {
	config := NewScoreConfig()
	if v, err := cmd.Flags().GetString("skill"); err == nil {
		config.Skill = v
	}
	if v, err := cmd.Flags().GetString("section"); err == nil {
		config.Section = v
	}
	if v, err := cmd.Flags().GetString("name"); err == nil {
		config.Name = v
	}
	if v, err := cmd.Flags().GetInt("threshold"); err == nil {
		config.Threshold = v
	}
	if v, err := cmd.Flags().GetStringSlice("required"); err == nil {
		config.RequiredFields = v
	}
	if v, err := cmd.Flags().GetStringSlice("facts"); err == nil {
		config.Facts = v
	}
	if v, err := cmd.Flags().GetBool("json"); err == nil {
		config.JSON = v
	}
	if v, err := cmd.Flags().GetBool("watch"); err == nil {
		config.Watch = v
	}
	return config
}

func runScoreCommand(ctx context.Context, path string, config *ScoreConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	tmpl, err := scoreTemplate(ctx, config)
	if err != nil {
		return err
	}
	factSet, err := facts.Load(config.Facts...)
	if err != nil {
		return err
	}

	controller, err := scoringController()
	if err != nil {
		return err
	}
	score := func() error {
		draft, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read draft %s", path)
		}
		ev, err := controller.Evaluate(tmpl, string(draft), factSet)
		if err != nil {
			return err
		}
		return printEvaluation(ev, config.JSON)
	}

	if err := score(); err != nil {
		return err
	}
	if !config.Watch {
		return nil
	}
	return watchFile(ctx, path, func() {
		presenter.Separator()
		if err := score(); err != nil {
			presenter.Error(err, "Failed to score draft")
		}
	})
}

// scoreTemplate resolves the template from a skill or the inline flags
func scoreTemplate(ctx context.Context, config *ScoreConfig) (reviewtypes.SectionTemplate, error) {
	if config.Skill == "" {
		return reviewtypes.SectionTemplate{
			Name:           config.Name,
			Threshold:      config.Threshold,
			RequiredFields: config.RequiredFields,
		}, nil
	}

	skill, err := findSkill(ctx, config.Skill)
	if err != nil {
		return reviewtypes.SectionTemplate{}, err
	}
	if tmpl, ok := skill.Section(config.Section); ok {
		return tmpl, nil
	}
	for _, tmpl := range skill.Sections {
		if strings.EqualFold(tmpl.Name, config.Section) {
			return tmpl, nil
		}
	}
	return reviewtypes.SectionTemplate{}, errors.Wrapf(reviewtypes.ErrUnknownSection, "skill %q has no section %q", skill.Name, config.Section)
}

func printEvaluation(ev review.Evaluation, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(ev, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode evaluation")
		}
		fmt.Println(string(data))
		return nil
	}

	presenter.ReviewSummary(reviewtypes.ReviewSummary{
		RunID: "-",
		Phase: reviewtypes.PhaseDrafting,
		Round: 1,
		Rows: []reviewtypes.SummaryRow{{
			Section:   ev.Section,
			SectionID: ev.SectionID,
			Composite: ev.Composite.Value,
			Threshold: ev.Composite.Threshold,
			Status:    ev.Status,
			Weakest:   weakestDimensions(ev),
			Notes:     ev.Notes,
		}},
	})
	for _, sc := range ev.Scores.Scores {
		presenter.Info(fmt.Sprintf("  %-20s %2d/%d  %s", sc.Dimension, sc.Value, reviewtypes.MaxDimensionScore, sc.Justification))
	}
	if ev.Question != nil {
		presenter.Questions([]reviewtypes.GapQuestion{*ev.Question})
	}
	return nil
}

func weakestDimensions(ev review.Evaluation) []reviewtypes.Dimension {
	if ev.Composite.Passed {
		return nil
	}
	var out []reviewtypes.Dimension
	for _, sc := range ev.Scores.Weakest() {
		out = append(out, sc.Dimension)
	}
	return out
}

// watchFile calls onChange after every write to path until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are still seen.
func watchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}
	logger.G(ctx).WithField("path", abs).Info("watching draft for changes")

	const debounce = 200 * time.Millisecond
	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer = time.After(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Warn("file watcher error")
		case <-timer:
			timer = nil
			onChange()
		}
	}
}
