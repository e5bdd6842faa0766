// Package review implements the review loop controller: the state machine
// that drafts every section, scores it, asks the user about failing
// sections and regenerates them until each one is passed or overridden.
//
// The controller is the single writer of a ReviewState. Drafting and
// scoring run concurrently per section, but workers only compute results;
// the controller applies them to the state afterwards.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/docgate/pkg/gaps"
	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/scoring"
	"github.com/jingkaihe/docgate/pkg/telemetry"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// ErrEmptyResponse is returned by Resume when the response carries nothing to act on
var ErrEmptyResponse = errors.New("response carries no answers, facts, override or cancel")

// UserAnswerSource is the document recorded on facts supplied by the user.
const UserAnswerSource = "user answer"

// GenerateRequest is everything a section generator gets to draft one section.
type GenerateRequest struct {
	Skill    string
	Language string
	// StyleGuide is the skill body shared by every section.
	StyleGuide     string
	Template       reviewtypes.SectionTemplate
	Facts          reviewtypes.FactSet
	Clarifications []string
	PreviousDraft  string
	// Attempt is the 1-based generator call number for the section.
	Attempt int
}

// Generator drafts section text. It is an opaque, possibly
// non-deterministic collaborator.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}

// Asker blocks until the user answers the pending gap questions. There is
// no timeout; the wait is human-paced.
type Asker interface {
	Ask(ctx context.Context, summary reviewtypes.ReviewSummary, questions []reviewtypes.GapQuestion) (reviewtypes.Response, error)
}

// Saver persists a review state after every transition
type Saver interface {
	Save(ctx context.Context, state *reviewtypes.ReviewState) error
}

// Controller drives ReviewStates through the review loop.
type Controller struct {
	generator       Generator
	scorer          *scoring.Scorer
	resolver        *gaps.Resolver
	saver           Saver
	styleGuide      string
	maxEmptyRetries int
	emptyRetryDelay time.Duration
	concurrency     int
	now             func() time.Time
	newID           func() string
}

// Option configures a Controller
type Option func(*Controller)

// WithMaxEmptyRetries bounds the automatic retries after an empty draft
func WithMaxEmptyRetries(n int) Option {
	return func(c *Controller) {
		if n >= 0 {
			c.maxEmptyRetries = n
		}
	}
}

// WithEmptyRetryDelay sets the pause between empty-draft retries
func WithEmptyRetryDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.emptyRetryDelay = d
	}
}

// WithConcurrency bounds how many sections are drafted or scored at once
func WithConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithIDFunc overrides the run id generator
func WithIDFunc(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// WithScorer overrides the dimension scorer
func WithScorer(s *scoring.Scorer) Option {
	return func(c *Controller) {
		c.scorer = s
	}
}

// WithResolver overrides the gap resolver
func WithResolver(r *gaps.Resolver) Option {
	return func(c *Controller) {
		c.resolver = r
	}
}

// WithSaver persists the state after every transition
func WithSaver(s Saver) Option {
	return func(c *Controller) {
		c.saver = s
	}
}

// WithStyleGuide sets the skill body passed to the generator
func WithStyleGuide(guide string) Option {
	return func(c *Controller) {
		c.styleGuide = guide
	}
}

// NewController creates a controller around a section generator
func NewController(generator Generator, opts ...Option) *Controller {
	c := &Controller{
		generator:       generator,
		scorer:          scoring.NewScorer(nil),
		resolver:        gaps.NewResolver(),
		maxEmptyRetries: 2,
		concurrency:     4,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRun initializes a review state in the drafting phase
func (c *Controller) NewRun(skill, language string, templates []reviewtypes.SectionTemplate, facts reviewtypes.FactSet) *reviewtypes.ReviewState {
	now := c.now()
	state := &reviewtypes.ReviewState{
		ID:        c.newID(),
		Skill:     skill,
		Language:  language,
		Phase:     reviewtypes.PhaseDrafting,
		Round:     1,
		Facts:     facts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, t := range templates {
		state.Sections = append(state.Sections, reviewtypes.NewSection(t))
	}
	c.audit(state, "", "run_started", fmt.Sprintf("%d sections, %d facts", len(state.Sections), facts.Len()))
	return state
}

func (c *Controller) audit(state *reviewtypes.ReviewState, section, event, detail string) {
	state.Audit = append(state.Audit, reviewtypes.AuditEntry{
		At:      c.now(),
		Round:   state.Round,
		Section: section,
		Event:   event,
		Detail:  detail,
	})
}

func (c *Controller) save(ctx context.Context, state *reviewtypes.ReviewState) error {
	state.UpdatedAt = c.now()
	if c.saver == nil {
		return nil
	}
	return errors.Wrap(c.saver.Save(ctx, state), "failed to persist review state")
}

func checkActive(state *reviewtypes.ReviewState) error {
	switch state.Phase {
	case reviewtypes.PhaseFinalized:
		return reviewtypes.ErrRunFinalized
	case reviewtypes.PhaseCancelled:
		return reviewtypes.ErrRunCancelled
	}
	return nil
}

// Advance runs the loop from DRAFTING or REGENERATING through SCORING to
// the next suspension point: NEEDS_INPUT when a section failed, FINALIZED
// when every section is passed or overridden.
func (c *Controller) Advance(ctx context.Context, state *reviewtypes.ReviewState) error {
	if err := checkActive(state); err != nil {
		return err
	}
	ctx = logger.WithRun(ctx, state.ID)

	return telemetry.WithSpan(ctx, "review.advance", func(ctx context.Context) error {
		switch state.Phase {
		case reviewtypes.PhaseDrafting, reviewtypes.PhaseRegenerating:
			if err := c.draftPass(ctx, state); err != nil {
				return err
			}
			state.Phase = reviewtypes.PhaseScoring
			if err := c.save(ctx, state); err != nil {
				return err
			}
			fallthrough
		case reviewtypes.PhaseScoring:
			if err := c.scorePass(ctx, state); err != nil {
				return err
			}
			c.settle(ctx, state)
			telemetry.SetAttributes(ctx,
				attribute.String("run.result_phase", string(state.Phase)),
				attribute.Int("run.questions", len(state.Questions)))
			return c.save(ctx, state)
		default:
			return errors.Wrapf(reviewtypes.ErrInvalidPhase, "cannot advance from %s", state.Phase)
		}
	}, telemetry.RunAttributes(state.ID, state.Skill, string(state.Phase), state.Round)...)
}

// settle moves a scored state to FINALIZED or NEEDS_INPUT and raises the
// gap questions for every open section at once.
func (c *Controller) settle(ctx context.Context, state *reviewtypes.ReviewState) {
	pending := openSections(state)
	if len(pending) == 0 && state.AllAccepted() {
		c.finalize(ctx, state)
		return
	}

	state.Phase = reviewtypes.PhaseNeedsInput
	for _, sec := range pending {
		if missing := state.Facts.Missing(sec.Template.RequiredFields); len(missing) > 0 {
			err := &reviewtypes.MissingFactError{Section: sec.Name(), Keys: missing}
			c.audit(state, sec.ID(), "missing_fact", err.Error())
			continue
		}
		if err := scoring.Unmet(sec); err != nil {
			c.audit(state, sec.ID(), "threshold_unmet", err.Error())
		}
	}
	state.Questions = c.resolver.Resolve(pending, state.Facts)
	logger.G(ctx).
		WithField("open", len(pending)).
		WithField("questions", len(state.Questions)).
		Info("review needs input")
}

// openSections returns the sections that block finalization: failed ones,
// and passed ones whose required facts were never found.
func openSections(state *reviewtypes.ReviewState) []*reviewtypes.Section {
	var out []*reviewtypes.Section
	for _, sec := range state.Sections {
		if isOpen(state, sec) {
			out = append(out, sec)
		}
	}
	return out
}

func isOpen(state *reviewtypes.ReviewState, sec *reviewtypes.Section) bool {
	switch sec.Status {
	case reviewtypes.StatusFailed:
		return true
	case reviewtypes.StatusPassed:
		return len(state.Facts.Missing(sec.Template.RequiredFields)) > 0
	}
	return false
}

func (c *Controller) finalize(ctx context.Context, state *reviewtypes.ReviewState) {
	state.Phase = reviewtypes.PhaseFinalized
	state.Questions = nil
	counts := state.Counts()
	c.audit(state, "", "finalized", fmt.Sprintf("%d passed, %d overridden",
		counts[reviewtypes.StatusPassed], counts[reviewtypes.StatusOverridden]))
	logger.G(ctx).WithField("round", state.Round).Info("review finalized")
}

// Resume applies the user's response to a run waiting for input and
// advances it to the next suspension point.
//
// A run that stopped inside a pass, for example after a generator error
// during REGENERATING, is advanced first. There are no open questions at
// that point, so any answers in the response are recorded as ignored and
// the new questions are returned through the state.
func (c *Controller) Resume(ctx context.Context, state *reviewtypes.ReviewState, resp reviewtypes.Response) error {
	if err := checkActive(state); err != nil {
		return err
	}
	if state.Phase.InProgress() {
		return c.resumeInterrupted(ctx, state, resp)
	}
	if state.Phase != reviewtypes.PhaseNeedsInput {
		return errors.Wrapf(reviewtypes.ErrInvalidPhase, "cannot resume from %s", state.Phase)
	}
	if resp.Cancel {
		return c.Cancel(ctx, state)
	}
	if resp.Empty() {
		return ErrEmptyResponse
	}
	if err := validateResponse(state, resp); err != nil {
		return err
	}

	ctx = logger.WithRun(ctx, state.ID)
	return telemetry.WithSpan(ctx, "review.resume", func(ctx context.Context) error {
		return c.apply(ctx, state, resp)
	}, telemetry.RunAttributes(state.ID, state.Skill, string(state.Phase), state.Round)...)
}

func (c *Controller) apply(ctx context.Context, state *reviewtypes.ReviewState, resp reviewtypes.Response) error {
	c.applyOverrides(ctx, state, resp)
	c.applyFacts(state, resp)
	c.applyAnswers(ctx, state, resp)

	state.Questions = nil
	if len(state.Failing()) == 0 {
		c.settle(ctx, state)
		return c.save(ctx, state)
	}

	state.Round++
	state.Phase = reviewtypes.PhaseRegenerating
	if err := c.save(ctx, state); err != nil {
		return err
	}
	return c.Advance(ctx, state)
}

func (c *Controller) resumeInterrupted(ctx context.Context, state *reviewtypes.ReviewState, resp reviewtypes.Response) error {
	if resp.Cancel {
		return c.Cancel(ctx, state)
	}
	ctx = logger.WithRun(ctx, state.ID)
	logger.G(ctx).WithField("phase", state.Phase).Info("advancing interrupted run")
	if err := c.Advance(ctx, state); err != nil {
		return err
	}
	if resp.Empty() {
		return nil
	}
	c.audit(state, "", "response_ignored", fmt.Sprintf("run was interrupted, %d answers and %d facts not applied", len(resp.Answers), len(resp.Facts)))
	return c.save(ctx, state)
}

func validateResponse(state *reviewtypes.ReviewState, resp reviewtypes.Response) error {
	for ref := range resp.Answers {
		if _, ok := state.Section(ref); !ok {
			return errors.Wrapf(reviewtypes.ErrUnknownSection, "answer for %q", ref)
		}
	}
	for _, ref := range resp.OverrideSections {
		if _, ok := state.Section(ref); !ok {
			return errors.Wrapf(reviewtypes.ErrUnknownSection, "override for %q", ref)
		}
	}
	return nil
}

func (c *Controller) override(ctx context.Context, state *reviewtypes.ReviewState, sec *reviewtypes.Section) {
	if !isOpen(state, sec) {
		return
	}
	sec.Status = reviewtypes.StatusOverridden
	sec.OverrideReason = reviewtypes.OverrideReason
	c.audit(state, sec.ID(), "override", fmt.Sprintf("%s at composite %d", reviewtypes.OverrideReason, sec.LatestComposite()))
	telemetry.AddEvent(ctx, "section.overridden", telemetry.SectionAttributes(sec.ID(), sec.Attempts)...)
	logger.G(logger.WithSection(ctx, sec.ID())).Info("section overridden by user")
}

func (c *Controller) applyOverrides(ctx context.Context, state *reviewtypes.ReviewState, resp reviewtypes.Response) {
	if resp.Override {
		for _, sec := range openSections(state) {
			c.override(ctx, state, sec)
		}
	}
	for _, ref := range resp.OverrideSections {
		if sec, ok := state.Section(ref); ok {
			c.override(ctx, state, sec)
		}
	}
	for ref, answer := range resp.Answers {
		if !gaps.IsOverride(answer) {
			continue
		}
		if sec, ok := state.Section(ref); ok {
			c.override(ctx, state, sec)
		}
	}
}

func (c *Controller) applyFacts(state *reviewtypes.ReviewState, resp reviewtypes.Response) {
	if len(resp.Facts) == 0 {
		return
	}
	var added []reviewtypes.Fact
	for _, key := range sortedKeys(resp.Facts) {
		value := strings.TrimSpace(resp.Facts[key])
		if value == "" {
			continue
		}
		if state.Facts.Has(key) {
			c.audit(state, "", "fact_ignored", fmt.Sprintf("%s already extracted from sources", key))
			continue
		}
		added = append(added, userFact(key, value, state.Round))
		c.audit(state, "", "fact_added", key)
	}
	state.Facts = state.Facts.With(added...)
}

func (c *Controller) applyAnswers(ctx context.Context, state *reviewtypes.ReviewState, resp reviewtypes.Response) {
	var added []reviewtypes.Fact
	for _, ref := range sortedKeys(resp.Answers) {
		answer := strings.TrimSpace(resp.Answers[ref])
		sec, _ := state.Section(ref)
		if answer == "" || gaps.IsOverride(answer) {
			continue
		}
		if sec.Status == reviewtypes.StatusPassed && isOpen(state, sec) {
			added = append(added, fieldAnswers(state, sec, answer)...)
			c.audit(state, sec.ID(), "answered", answer)
			continue
		}
		if sec.Status != reviewtypes.StatusFailed {
			c.audit(state, sec.ID(), "answer_ignored", fmt.Sprintf("section is %s", sec.Status))
			logger.G(logger.WithSection(ctx, sec.ID())).Warn("ignoring answer for a section that needs no input")
			continue
		}

		sec.Clarifications = append(sec.Clarifications, answer)
		added = append(added, userFact(fmt.Sprintf("answer.%s.%d", sec.ID(), state.Round), answer, state.Round))
		if q, ok := questionFor(state, sec.ID()); ok && len(q.MissingFields) == 1 && !state.Facts.Has(q.MissingFields[0]) {
			added = append(added, userFact(q.MissingFields[0], answer, state.Round))
		}
		c.audit(state, sec.ID(), "answered", answer)
	}
	state.Facts = state.Facts.With(added...)
}

// fieldAnswers turns an answer for a passed section into facts for its
// missing fields. Each "key: value" line fills the named field; a single
// missing field takes the whole answer.
func fieldAnswers(state *reviewtypes.ReviewState, sec *reviewtypes.Section, answer string) []reviewtypes.Fact {
	missing := state.Facts.Missing(sec.Template.RequiredFields)
	wanted := make(map[string]struct{}, len(missing))
	for _, key := range missing {
		wanted[key] = struct{}{}
	}

	var out []reviewtypes.Fact
	for _, line := range strings.Split(answer, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if _, want := wanted[key]; !want || value == "" {
			continue
		}
		delete(wanted, key)
		out = append(out, userFact(key, value, state.Round))
	}
	if len(out) == 0 && len(missing) == 1 {
		out = append(out, userFact(missing[0], answer, state.Round))
	}
	return out
}

func questionFor(state *reviewtypes.ReviewState, sectionID string) (reviewtypes.GapQuestion, bool) {
	for _, q := range state.Questions {
		if q.SectionID == sectionID {
			return q, true
		}
	}
	return reviewtypes.GapQuestion{}, false
}

func userFact(key, value string, round int) reviewtypes.Fact {
	return reviewtypes.Fact{
		Key:   key,
		Value: value,
		Source: reviewtypes.SourceRef{
			Document: UserAnswerSource,
			Page:     fmt.Sprintf("round %d", round),
			Quote:    value,
		},
	}
}

// Cancel aborts a run in DRAFTING or NEEDS_INPUT. Every section and its
// revision history is discarded so no partial document can be assembled.
func (c *Controller) Cancel(ctx context.Context, state *reviewtypes.ReviewState) error {
	if err := checkActive(state); err != nil {
		return err
	}
	if state.Phase != reviewtypes.PhaseDrafting && state.Phase != reviewtypes.PhaseNeedsInput {
		return errors.Wrapf(reviewtypes.ErrInvalidPhase, "cannot cancel during %s", state.Phase)
	}

	state.Sections = nil
	state.Questions = nil
	state.Phase = reviewtypes.PhaseCancelled
	c.audit(state, "", "cancelled", "sections discarded")
	logger.G(logger.WithRun(ctx, state.ID)).Info("review cancelled")
	return c.save(ctx, state)
}

// Run drives the loop to a terminal phase, blocking on the asker whenever
// the run needs input.
func (c *Controller) Run(ctx context.Context, state *reviewtypes.ReviewState, asker Asker) error {
	for {
		switch state.Phase {
		case reviewtypes.PhaseFinalized:
			return nil
		case reviewtypes.PhaseCancelled:
			return reviewtypes.ErrRunCancelled
		case reviewtypes.PhaseNeedsInput:
			resp, err := asker.Ask(ctx, c.Summary(state), state.Questions)
			if err != nil {
				return errors.Wrap(err, "failed to collect answers")
			}
			if err := c.Resume(ctx, state, resp); err != nil {
				if errors.Cause(err) == ErrEmptyResponse {
					logger.G(ctx).Warn("empty response, asking again")
					continue
				}
				return err
			}
		default:
			if err := c.Advance(ctx, state); err != nil {
				return err
			}
		}
	}
}

// Summary builds the table shown to the user
func (c *Controller) Summary(state *reviewtypes.ReviewState) reviewtypes.ReviewSummary {
	summary := reviewtypes.ReviewSummary{
		RunID: state.ID,
		Phase: state.Phase,
		Round: state.Round,
	}
	for _, sec := range state.Sections {
		row := reviewtypes.SummaryRow{
			Section:   sec.Name(),
			SectionID: sec.ID(),
			Composite: sec.LatestComposite(),
			Threshold: sec.Template.Threshold,
			Status:    sec.Status,
			Notes:     scoring.Notes(sec, state.Facts),
		}
		if rev, ok := sec.Latest(); ok && !rev.Composite.Passed {
			for _, sc := range rev.Scores.Weakest() {
				row.Weakest = append(row.Weakest, sc.Dimension)
			}
		}
		summary.Rows = append(summary.Rows, row)
	}
	return summary
}

// Accepted returns the finalized sections in document order for the assembler
func (c *Controller) Accepted(state *reviewtypes.ReviewState) ([]reviewtypes.AcceptedSection, error) {
	return Accepted(state)
}

// Accepted returns the finalized sections of a state in document order
func Accepted(state *reviewtypes.ReviewState) ([]reviewtypes.AcceptedSection, error) {
	if state.Phase != reviewtypes.PhaseFinalized {
		return nil, errors.Wrapf(reviewtypes.ErrNotFinalized, "run %s is %s", state.ID, state.Phase)
	}
	out := make([]reviewtypes.AcceptedSection, 0, len(state.Sections))
	for _, sec := range state.Sections {
		if !sec.Status.Accepted() {
			return nil, errors.Errorf("section %q is %s and cannot be assembled", sec.Name(), sec.Status)
		}
		out = append(out, reviewtypes.AcceptedSection{
			ID:        sec.ID(),
			Name:      sec.Name(),
			Text:      sec.Draft,
			Status:    sec.Status,
			Composite: sec.LatestComposite(),
		})
	}
	return out, nil
}
