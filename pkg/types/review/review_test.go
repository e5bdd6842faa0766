package review

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scoresOf(values ...int) DimensionScores {
	var s DimensionScores
	for i, d := range AllDimensions {
		s.Scores = append(s.Scores, DimensionScore{Dimension: d, Value: values[i]})
	}
	return s
}

func TestFactSet(t *testing.T) {
	set := NewFactSet(
		Fact{Key: "client_name", Value: "Acme"},
		Fact{Key: "budget", Value: "50000"},
		Fact{Key: "client_name", Value: "Ignored"},
		Fact{Key: "", Value: "no key"},
	)

	assert.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"budget", "client_name"}, set.Keys())

	f, ok := set.Get("client_name")
	require.True(t, ok)
	assert.Equal(t, "Acme", f.Value)

	assert.Equal(t, []string{"team_size"}, set.Missing([]string{"client_name", "team_size"}))

	t.Run("with leaves receiver untouched", func(t *testing.T) {
		extended := set.With(Fact{Key: "team_size", Value: "6"}, Fact{Key: "budget", Value: "1"})
		assert.Equal(t, 3, extended.Len())
		assert.Equal(t, 2, set.Len())

		budget, _ := extended.Get("budget")
		assert.Equal(t, "50000", budget.Value)
	})

	t.Run("json round trip keeps order", func(t *testing.T) {
		data, err := json.Marshal(set)
		require.NoError(t, err)
		assert.JSONEq(t, `[{"key":"budget","value":"50000","source":{"document":""}},{"key":"client_name","value":"Acme","source":{"document":""}}]`, string(data))

		var decoded FactSet
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, set.Keys(), decoded.Keys())
	})
}

func TestDimensionScoresSumClamps(t *testing.T) {
	s := scoresOf(25, -3, 20, 20, 20)
	assert.Equal(t, 80, s.Sum())
}

func TestWeakest(t *testing.T) {
	tests := []struct {
		name     string
		scores   DimensionScores
		expected []Dimension
	}{
		{
			name:     "all tied below cutoff uses priority",
			scores:   scoresOf(10, 10, 10, 10, 10),
			expected: []Dimension{Completeness, Specificity, AntiHallucination, SourceGrounding, Actionability},
		},
		{
			name:     "ascending by score",
			scores:   scoresOf(11, 18, 4, 9, 20),
			expected: []Dimension{Completeness, Actionability, SourceGrounding},
		},
		{
			name:     "none below cutoff returns lowest",
			scores:   scoresOf(18, 17, 18, 18, 18),
			expected: []Dimension{Specificity},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Dimension
			for _, sc := range tt.scores.Weakest() {
				got = append(got, sc.Dimension)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "pain_points", Slug("Pain Points"))
	assert.Equal(t, "ai_breakthrough_canvas", Slug("  AI Breakthrough Canvas! "))
	assert.Equal(t, "data_sources", SectionTemplate{Name: "Data Sources"}.Key())
	assert.Equal(t, "custom", SectionTemplate{ID: "custom", Name: "Data Sources"}.Key())
}

func TestWordBudgetCheck(t *testing.T) {
	b := WordBudget{Min: 10, Max: 20}
	assert.Equal(t, "below word budget", b.Check(5))
	assert.Equal(t, "", b.Check(15))
	assert.Equal(t, "above word budget", b.Check(25))
	assert.Equal(t, "", WordBudget{}.Check(1000))
}

func TestReviewStateLookup(t *testing.T) {
	state := &ReviewState{
		Sections: []*Section{
			NewSection(SectionTemplate{Name: "Pain Points", Threshold: 75}),
			NewSection(SectionTemplate{Name: "Challenges", Threshold: 65}),
		},
	}

	sec, ok := state.Section("pain_points")
	require.True(t, ok)
	assert.Equal(t, "Pain Points", sec.Name())

	sec, ok = state.Section("challenges ")
	require.True(t, ok)
	assert.Equal(t, "challenges", sec.ID())

	_, ok = state.Section("unknown")
	assert.False(t, ok)

	assert.False(t, state.AllAccepted())
	state.Sections[0].Status = StatusPassed
	state.Sections[1].Status = StatusOverridden
	assert.True(t, state.AllAccepted())

	summary := state.ToSummary()
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Overridden)
	assert.Equal(t, 2, summary.Sections)
}

func TestErrorPredicates(t *testing.T) {
	empty := errors.Wrap(&EmptyDraftError{Section: "Goal", Attempt: 1}, "drafting")
	assert.True(t, IsEmptyDraft(empty))
	assert.False(t, IsMissingFact(empty))
	assert.Contains(t, empty.Error(), "EMPTY_DRAFT")

	missing := &MissingFactError{Section: "Data", Keys: []string{"crm_export", "budget"}}
	assert.True(t, IsMissingFact(missing))
	assert.Contains(t, missing.Error(), "crm_export, budget")

	unmet := &ThresholdUnmetError{Section: "Data", Composite: 50, Threshold: 70}
	assert.True(t, IsThresholdUnmet(unmet))
	assert.Equal(t, `section "Data" scored 50, below threshold 70`, unmet.Error())
}
