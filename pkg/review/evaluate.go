package review

import (
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/scoring"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

// Evaluation is the outcome of scoring one draft outside a run
type Evaluation struct {
	Section   string                      `json:"section"`
	SectionID string                      `json:"section_id"`
	Scores    reviewtypes.DimensionScores `json:"scores"`
	Composite reviewtypes.CompositeScore  `json:"composite"`
	Status    reviewtypes.Status          `json:"status"`
	Notes     []string                    `json:"notes,omitempty"`
	Question  *reviewtypes.GapQuestion    `json:"question,omitempty"`
}

// Evaluate scores a single draft against a template and, when it fails,
// raises the gap question a run would ask. No state is touched.
func (c *Controller) Evaluate(tmpl reviewtypes.SectionTemplate, draft string, facts reviewtypes.FactSet) (Evaluation, error) {
	sec := reviewtypes.NewSection(tmpl)
	sec.Draft = draft
	sec.Attempts = 1

	scores, err := c.scorer.Score(draft, tmpl, facts)
	if err != nil && !reviewtypes.IsEmptyDraft(err) {
		return Evaluation{}, errors.Wrapf(err, "failed to score section %q", tmpl.Name)
	}
	composite := scoring.Evaluate(sec, scores, 1, c.now())
	if err != nil {
		sec.EmptyDraft = true
	}

	ev := Evaluation{
		Section:   sec.Name(),
		SectionID: sec.ID(),
		Scores:    scores,
		Composite: composite,
		Status:    sec.Status,
		Notes:     scoring.Notes(sec, facts),
	}
	if q, ok := c.resolver.Question(sec, facts); ok {
		ev.Question = &q
	}
	return ev, nil
}
