package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

func scoresOf(values ...int) review.DimensionScores {
	var s review.DimensionScores
	for i, d := range review.AllDimensions {
		s.Scores = append(s.Scores, review.DimensionScore{Dimension: d, Value: values[i]})
	}
	return s
}

func TestEvaluateScenarios(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		section   string
		threshold int
		scores    review.DimensionScores
		composite int
		status    review.Status
	}{
		{"pain points pass", "Pain Points", 75, scoresOf(18, 17, 18, 18, 18), 89, review.StatusPassed},
		{"challenges pass despite low dimensions", "Challenges", 65, scoresOf(13, 14, 13, 14, 13), 67, review.StatusPassed},
		{"data sources pass", "Data Sources", 70, scoresOf(16, 15, 14, 16, 17), 78, review.StatusPassed},
		{"data sources fail", "Data Sources", 70, scoresOf(10, 10, 10, 10, 10), 50, review.StatusFailed},
		{"tie counts as pass", "Goal", 67, scoresOf(13, 14, 13, 14, 13), 67, review.StatusPassed},
		{"out of range sub-scores are clamped", "Goal", 90, scoresOf(30, 20, 20, 20, -5), 80, review.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			section := review.NewSection(review.SectionTemplate{Name: tt.section, Threshold: tt.threshold})
			section.Draft = "draft"

			composite := Evaluate(section, tt.scores, 1, at)
			assert.Equal(t, tt.composite, composite.Value)
			assert.Equal(t, tt.threshold, composite.Threshold)
			assert.Equal(t, tt.status, section.Status)
			assert.Equal(t, composite.Value >= tt.threshold, composite.Passed)
			assert.Equal(t, at, composite.At)

			require.Len(t, section.History, 1)
			assert.Equal(t, composite, section.History[0].Composite)
			assert.Equal(t, "draft", section.History[0].Draft)

			if tt.status == review.StatusFailed {
				err := Unmet(section)
				require.Error(t, err)
				assert.True(t, review.IsThresholdUnmet(err))
			} else {
				assert.NoError(t, Unmet(section))
			}
		})
	}
}

func TestEvaluateAppendsHistory(t *testing.T) {
	section := review.NewSection(review.SectionTemplate{Name: "Data Sources", Threshold: 70})
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	section.Draft = "first"
	Evaluate(section, scoresOf(10, 10, 10, 10, 10), 1, t0)
	first := section.History[0]

	section.Draft = "second"
	second := Evaluate(section, scoresOf(16, 15, 14, 16, 17), 2, t0.Add(time.Minute))

	require.Len(t, section.History, 2)
	assert.Equal(t, first, section.History[0])
	assert.Equal(t, 2, second.Attempt)
	assert.Equal(t, 2, section.History[1].Round)
	assert.Equal(t, 78, section.LatestComposite())
	assert.Equal(t, review.StatusPassed, section.Status)
}

func TestNotes(t *testing.T) {
	section := review.NewSection(review.SectionTemplate{
		Name:           "Goal",
		RequiredFields: []string{"goal_statement"},
		WordBudget:     review.WordBudget{Min: 10, Max: 80},
		Threshold:      60,
	})
	section.Draft = "Ship the pilot."
	section.Status = review.StatusPassed

	notes := Notes(section, review.NewFactSet())
	assert.Equal(t, []string{
		"below word budget",
		`section "Goal" references missing facts: goal_statement`,
	}, notes)

	section.Status = review.StatusOverridden
	section.OverrideReason = review.OverrideReason
	assert.Contains(t, Notes(section, review.NewFactSet()), review.OverrideReason)
}
