package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/docgate/pkg/llm"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/scoring"
	"github.com/jingkaihe/docgate/pkg/skills"
	"github.com/jingkaihe/docgate/pkg/store"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// newController builds the review controller from the generator and review.*
// settings. The store, when given, receives every state transition.
func newController(ctx context.Context, st store.Store, styleGuide string) (*review.Controller, error) {
	config, err := llm.GetConfigFromViper()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load generator configuration")
	}
	generator, err := llm.NewGenerator(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create section generator")
	}
	opts, err := controllerOptions(st, styleGuide)
	if err != nil {
		return nil, err
	}
	return review.NewController(generator, opts...), nil
}

// newScorer builds the dimension scorer. Terms under scoring.rubric extend
// the built-in rubric.
func newScorer() (*scoring.Scorer, error) {
	return scorerFromConfig(viper.GetViper())
}

func scorerFromConfig(v *viper.Viper) (*scoring.Scorer, error) {
	if !v.IsSet("scoring.rubric") {
		return scoring.NewScorer(nil), nil
	}
	var extra scoring.Rubric
	if err := v.UnmarshalKey("scoring.rubric", &extra); err != nil {
		return nil, errors.Wrap(err, "invalid scoring.rubric configuration")
	}
	return scoring.NewScorer(scoring.DefaultRubric().Extend(&extra)), nil
}

// scoringController builds a controller that only scores and never drafts
func scoringController() (*review.Controller, error) {
	scorer, err := newScorer()
	if err != nil {
		return nil, err
	}
	return review.NewController(nil, review.WithScorer(scorer)), nil
}

func controllerOptions(st store.Store, styleGuide string) ([]review.Option, error) {
	scorer, err := newScorer()
	if err != nil {
		return nil, err
	}
	opts := []review.Option{
		review.WithScorer(scorer),
		review.WithMaxEmptyRetries(viper.GetInt("review.max_empty_retries")),
		review.WithConcurrency(viper.GetInt("review.concurrency")),
		review.WithStyleGuide(styleGuide),
	}
	if delay := viper.GetDuration("review.empty_retry_delay"); delay > 0 {
		opts = append(opts, review.WithEmptyRetryDelay(delay))
	}
	if st != nil {
		opts = append(opts, review.WithSaver(st))
	}
	return opts, nil
}

// findSkill looks a skill up by name through the configured discovery
func findSkill(ctx context.Context, name string) (*skills.Skill, error) {
	discovery, err := skills.NewDiscoveryFromConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize skill discovery")
	}
	return discovery.GetSkill(name)
}

// styleGuideFor returns the style guide of the skill a run was started with.
// A skill that no longer exists yields an empty guide.
func styleGuideFor(ctx context.Context, name string) string {
	skill, err := findSkill(ctx, name)
	if err != nil {
		return ""
	}
	return skill.Content
}

// parseKeyValues parses repeated key=value flags. Later keys win.
func parseKeyValues(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, errors.Errorf("expected key=value, got %q", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// loadResponseFile reads a Response from a YAML or JSON file. JSON is valid
// YAML so one decoder serves both.
func loadResponseFile(path string) (reviewtypes.Response, error) {
	var resp reviewtypes.Response
	data, err := os.ReadFile(path)
	if err != nil {
		return resp, errors.Wrapf(err, "failed to read %s", path)
	}

	var raw struct {
		Answers          map[string]string `yaml:"answers"`
		Facts            map[string]string `yaml:"facts"`
		Override         bool              `yaml:"override"`
		OverrideSections []string          `yaml:"override_sections"`
		Cancel           bool              `yaml:"cancel"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return resp, errors.Wrapf(err, "failed to parse %s", path)
	}

	resp.Answers = raw.Answers
	resp.Facts = raw.Facts
	resp.Override = raw.Override
	resp.OverrideSections = raw.OverrideSections
	resp.Cancel = raw.Cancel
	return resp, nil
}

// mergeResponse layers flag values on top of a response read from a file
func mergeResponse(base reviewtypes.Response, answers, facts map[string]string) reviewtypes.Response {
	if len(answers) > 0 && base.Answers == nil {
		base.Answers = make(map[string]string, len(answers))
	}
	for k, v := range answers {
		base.Answers[k] = v
	}
	if len(facts) > 0 && base.Facts == nil {
		base.Facts = make(map[string]string, len(facts))
	}
	for k, v := range facts {
		base.Facts[k] = v
	}
	return base
}

// writeOutput writes content to path, or to stdout when path is empty or "-"
func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	return errors.Wrapf(os.WriteFile(path, []byte(content), 0o644), "failed to write %s", path)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
