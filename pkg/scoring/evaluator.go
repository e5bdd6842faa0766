package scoring

import (
	"time"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

// Composite aggregates sub-scores into a 0-100 composite. Each sub-score
// is clamped to [0,20] before summing, so the mean times five equals the sum.
func Composite(scores review.DimensionScores, threshold int) review.CompositeScore {
	value := scores.Sum()
	return review.CompositeScore{
		Value:     value,
		Threshold: threshold,
		Passed:    value >= threshold,
	}
}

// Evaluate classifies the section against its threshold, appends a new
// revision for the current draft and returns the composite. Earlier
// revisions are never touched.
func Evaluate(section *review.Section, scores review.DimensionScores, round int, at time.Time) review.CompositeScore {
	composite := Composite(scores, section.Template.Threshold)
	composite.Attempt = len(section.History) + 1
	composite.At = at

	section.History = append(section.History, review.Revision{
		Attempt:   composite.Attempt,
		Round:     round,
		Draft:     section.Draft,
		Scores:    scores,
		Composite: composite,
		At:        at,
	})

	if composite.Passed {
		section.Status = review.StatusPassed
	} else {
		section.Status = review.StatusFailed
	}
	section.EmptyDraft = false
	return composite
}

// Unmet returns a *review.ThresholdUnmetError when the section's latest
// composite is below its threshold, nil otherwise.
func Unmet(section *review.Section) error {
	rev, ok := section.Latest()
	if !ok || rev.Composite.Passed {
		return nil
	}
	return &review.ThresholdUnmetError{
		Section:   section.Name(),
		Composite: rev.Composite.Value,
		Threshold: rev.Composite.Threshold,
	}
}

// Notes returns advisory notes for a section that do not affect its score
func Notes(section *review.Section, facts review.FactSet) []string {
	var notes []string
	if section.Draft != "" {
		if note := section.Template.WordBudget.Check(WordCount(section.Draft)); note != "" {
			notes = append(notes, note)
		}
	}
	if missing := facts.Missing(section.Template.RequiredFields); len(missing) > 0 && section.Status.Accepted() {
		err := &review.MissingFactError{Section: section.Name(), Keys: missing}
		notes = append(notes, err.Error())
	}
	if section.EmptyDraft {
		notes = append(notes, string(review.FlagEmptyDraft))
	}
	if section.Status == review.StatusOverridden {
		notes = append(notes, section.OverrideReason)
	}
	return notes
}
