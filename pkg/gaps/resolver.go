// Package gaps turns failing sections into targeted clarification
// questions. Every question names the concrete missing field or the
// concrete unsupported claim behind the failure.
package gaps

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

// OverrideAnswer is the answer that accepts a failing section as is.
const OverrideAnswer = "proceed anyway"

var overrideAnswers = map[string]struct{}{
	OverrideAnswer:        {},
	"trotzdem fortfahren": {},
}

// Resolver formulates gap questions for failing sections.
type Resolver struct {
	newID func() string
}

// Option configures a Resolver
type Option func(*Resolver)

// WithIDFunc sets the generator for question ids
func WithIDFunc(fn func() string) Option {
	return func(r *Resolver) {
		r.newID = fn
	}
}

// NewResolver creates a resolver
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{newID: uuid.NewString}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsOverride reports whether an answer is the explicit override phrase
func IsOverride(answer string) bool {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, ".!\"' ")
	_, ok := overrideAnswers[normalized]
	return ok
}

// Resolve returns one question per section that needs input, in section order
func (r *Resolver) Resolve(sections []*review.Section, facts review.FactSet) []review.GapQuestion {
	var questions []review.GapQuestion
	for _, sec := range sections {
		if q, ok := r.Question(sec, facts); ok {
			questions = append(questions, q)
		}
	}
	return questions
}

// Question builds the gap question for a section that needs input: a
// failed section, or a passed one whose required facts are missing. It
// returns false for every other section.
func (r *Resolver) Question(section *review.Section, facts review.FactSet) (review.GapQuestion, bool) {
	switch section.Status {
	case review.StatusFailed:
	case review.StatusPassed:
		missing := facts.Missing(section.Template.RequiredFields)
		if len(missing) == 0 {
			return review.GapQuestion{}, false
		}
		return r.passedMissingFact(section, missing), true
	default:
		return review.GapQuestion{}, false
	}
	if section.EmptyDraft {
		return r.EmptyDraftQuestion(section), true
	}

	q := review.GapQuestion{
		ID:        r.newID(),
		Section:   section.Name(),
		SectionID: section.ID(),
		Reason:    review.ReasonThresholdUnmet,
	}

	var weakest []review.DimensionScore
	if rev, ok := section.Latest(); ok {
		weakest = rev.Scores.Weakest()
		for _, sc := range weakest {
			q.Weakest = append(q.Weakest, sc.Dimension)
		}
	}
	if len(weakest) > 0 {
		q.Dimension = weakest[0].Dimension
	}

	if missing := facts.Missing(section.Template.RequiredFields); len(missing) > 0 {
		return r.missingFact(q, missing, weakest), true
	}
	if len(weakest) == 0 {
		q.Question = fmt.Sprintf("Section %q has not been scored yet. What source material should it be based on?", section.Name())
		q.SuggestedPrompt = "Point to the document, page or quote this section should draw on."
		return q, true
	}

	worst := weakest[0]
	switch worst.Dimension {
	case review.Completeness:
		fields := worst.Details
		if len(fields) == 0 {
			fields = section.Template.RequiredFields
		}
		q.MissingFields = fields
		if len(fields) == 0 {
			q.Question = fmt.Sprintf("Section %q is incomplete (%s). Which topics must it cover?", section.Name(), worst.Justification)
			q.SuggestedPrompt = "List the topics this section must cover, each with its source."
			break
		}
		q.Question = fmt.Sprintf("Section %q does not address these required fields: %s. What should it state for each?",
			section.Name(), strings.Join(fields, ", "))
		q.SuggestedPrompt = fieldPrompt(fields)

	case review.AntiHallucination:
		q.Claims = worst.Details
		q.Question = fmt.Sprintf("Section %q makes claims no source supports: %s. Confirm each with a source, or tell us to retract it.",
			section.Name(), quoteAll(q.Claims, "the unsupported figures"))
		q.SuggestedPrompt = "For each claim answer either \"confirm: <source>\" or \"retract\"."

	case review.SourceGrounding:
		q.Claims = worst.Details
		q.Question = fmt.Sprintf("Which source supports these statements in section %q: %s?",
			section.Name(), quoteAll(q.Claims, "its statements"))
		q.SuggestedPrompt = "Name the document and page, or paste the quote, for each statement."

	case review.Specificity:
		q.Claims = worst.Details
		q.Question = fmt.Sprintf("Section %q relies on generic wording (%s). Name the concrete system, team, or figure each phrase refers to.",
			section.Name(), strings.Join(orDefault(q.Claims, "vague references"), ", "))
		q.SuggestedPrompt = "Replace each generic phrase with the concrete name or number from your sources."

	case review.Actionability:
		q.Claims = worst.Details
		hedges := ""
		if len(q.Claims) > 0 {
			hedges = fmt.Sprintf(" and hedges with %s", strings.Join(q.Claims, ", "))
		}
		q.Question = fmt.Sprintf("Section %q names no concrete actions%s. Which deliverables, owners, and dates should it commit to?",
			section.Name(), hedges)
		q.SuggestedPrompt = "List each deliverable with its owner and due date."
	}

	q.Question += weakestSuffix(weakest)
	return q, true
}

func (r *Resolver) missingFact(q review.GapQuestion, missing []string, weakest []review.DimensionScore) review.GapQuestion {
	q.Reason = review.ReasonMissingFact
	q.MissingFields = missing
	q.Question = fmt.Sprintf("Section %q needs facts that were not found in any source: %s. Please provide a value for each.",
		q.Section, strings.Join(missing, ", "))
	q.SuggestedPrompt = fieldPrompt(missing)
	q.Question += weakestSuffix(weakest)
	return q
}

// passedMissingFact asks for required facts of a section that cleared its
// threshold without them. The section is never regenerated; the user
// supplies the facts or keeps the section with an override.
func (r *Resolver) passedMissingFact(section *review.Section, missing []string) review.GapQuestion {
	return review.GapQuestion{
		ID:            r.newID(),
		Section:       section.Name(),
		SectionID:     section.ID(),
		Reason:        review.ReasonMissingFact,
		Dimension:     review.Completeness,
		MissingFields: missing,
		Question: fmt.Sprintf("Section %q passed review, but it needs facts that were not found in any source: %s. Please provide a value for each, or answer %q to keep the section as it is.",
			section.Name(), strings.Join(missing, ", "), OverrideAnswer),
		SuggestedPrompt: fieldPrompt(missing),
	}
}

// EmptyDraftQuestion is raised when the generator kept returning an empty
// draft after every automatic retry.
func (r *Resolver) EmptyDraftQuestion(section *review.Section) review.GapQuestion {
	return review.GapQuestion{
		ID:        r.newID(),
		Section:   section.Name(),
		SectionID: section.ID(),
		Reason:    review.ReasonEmptyDraft,
		Question: fmt.Sprintf("The generator returned an empty draft for section %q after %d attempts. What content or source should it be based on?",
			section.Name(), section.Attempts),
		SuggestedPrompt: "Describe the key points of this section and where they come from, or answer \"" + OverrideAnswer + "\" to leave it empty.",
	}
}

func fieldPrompt(fields []string) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("%s: <value> (source: <document, page>)", f))
	}
	return strings.Join(lines, "\n")
}

func weakestSuffix(weakest []review.DimensionScore) string {
	if len(weakest) == 0 {
		return ""
	}
	parts := make([]string, 0, len(weakest))
	for _, sc := range weakest {
		parts = append(parts, fmt.Sprintf("%s %d/%d", sc.Dimension, review.ClampScore(sc.Value), review.MaxDimensionScore))
	}
	return " (weakest: " + strings.Join(parts, ", ") + ")"
}

func quoteAll(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	quoted := make([]string, 0, len(items))
	for _, it := range items {
		quoted = append(quoted, fmt.Sprintf("%q", it))
	}
	return strings.Join(quoted, "; ")
}

func orDefault(items []string, fallback string) []string {
	if len(items) == 0 {
		return []string{fallback}
	}
	return items
}
