package review

import (
	"context"
	"sort"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/scoring"
	"github.com/jingkaihe/docgate/pkg/telemetry"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

type draftResult struct {
	draft    string
	attempts int
	empty    bool
}

type scoreResult struct {
	scores reviewtypes.DimensionScores
	empty  bool
}

// draftPass generates every section that still needs work. Passed and
// overridden sections are never handed to the generator.
func (c *Controller) draftPass(ctx context.Context, state *reviewtypes.ReviewState) error {
	var targets []*reviewtypes.Section
	for _, sec := range state.Sections {
		if sec.NeedsWork() {
			targets = append(targets, sec)
		}
	}

	requests := make([]GenerateRequest, len(targets))
	for i, sec := range targets {
		requests[i] = GenerateRequest{
			Skill:          state.Skill,
			Language:       state.Language,
			StyleGuide:     c.styleGuide,
			Template:       sec.Template,
			Facts:          state.Facts,
			Clarifications: append([]string(nil), sec.Clarifications...),
			PreviousDraft:  sec.Draft,
			Attempt:        sec.Attempts,
		}
	}

	results := make([]draftResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range targets {
		g.Go(func() error {
			res, err := c.generate(gctx, requests[i])
			if err != nil {
				return errors.Wrapf(err, "failed to draft section %q", requests[i].Template.Name)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, sec := range targets {
		res := results[i]
		sec.Attempts += res.attempts
		if res.empty {
			sec.Draft = ""
			sec.EmptyDraft = true
			sec.Status = reviewtypes.StatusFailed
			err := &reviewtypes.EmptyDraftError{Section: sec.Name(), Attempt: sec.Attempts}
			c.audit(state, sec.ID(), "empty_draft", err.Error())
			continue
		}
		sec.Draft = res.draft
		sec.EmptyDraft = false
	}
	return nil
}

// generate calls the generator, retrying while it returns an empty draft.
// Exhausting the retries is reported through draftResult.empty, not as an
// error, so the section can surface as a gap question.
func (c *Controller) generate(ctx context.Context, req GenerateRequest) (draftResult, error) {
	ctx = logger.WithSection(ctx, req.Template.Key())
	var res draftResult

	err := telemetry.WithSpan(ctx, "review.generate", func(ctx context.Context) error {
		return retry.Do(
			func() error {
				res.attempts++
				req.Attempt++
				text, err := c.generator.Generate(ctx, req)
				if err != nil {
					return err
				}
				if scoring.IsEmpty(text) {
					telemetry.AddEvent(ctx, "empty_draft", attribute.Int("section.attempt", res.attempts))
					return &reviewtypes.EmptyDraftError{Section: req.Template.Name, Attempt: res.attempts}
				}
				res.draft = text
				return nil
			},
			retry.RetryIf(reviewtypes.IsEmptyDraft),
			retry.Attempts(uint(1+c.maxEmptyRetries)),
			retry.Delay(c.emptyRetryDelay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying empty draft")
			}),
		)
	}, telemetry.SectionAttributes(req.Template.Key(), req.Attempt+1)...)

	if reviewtypes.IsEmptyDraft(err) {
		res.empty = true
		return res, nil
	}
	return res, err
}

func needsScoring(sec *reviewtypes.Section, round int) bool {
	if !sec.NeedsWork() || sec.EmptyDraft {
		return false
	}
	rev, ok := sec.Latest()
	return !ok || rev.Round < round
}

// scorePass scores the freshly drafted sections concurrently and then
// applies every evaluation from the controller.
func (c *Controller) scorePass(ctx context.Context, state *reviewtypes.ReviewState) error {
	var targets []*reviewtypes.Section
	for _, sec := range state.Sections {
		if needsScoring(sec, state.Round) {
			targets = append(targets, sec)
		}
	}

	results := make([]scoreResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, sec := range targets {
		draft, tmpl := sec.Draft, sec.Template
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores, err := c.scorer.Score(draft, tmpl, state.Facts)
			if err != nil && !reviewtypes.IsEmptyDraft(err) {
				return errors.Wrapf(err, "failed to score section %q", tmpl.Name)
			}
			results[i] = scoreResult{scores: scores, empty: err != nil}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, sec := range targets {
		res := results[i]
		if res.empty {
			sec.EmptyDraft = true
			sec.Status = reviewtypes.StatusFailed
			c.audit(state, sec.ID(), "empty_draft", string(reviewtypes.FlagEmptyDraft))
			continue
		}
		composite := scoring.Evaluate(sec, res.scores, state.Round, c.now())
		logger.G(logger.WithSection(ctx, sec.ID())).
			WithField("composite", composite.Value).
			WithField("threshold", composite.Threshold).
			WithField("status", sec.Status).
			Info("section scored")
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
