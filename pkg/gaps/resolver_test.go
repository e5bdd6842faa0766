package gaps

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/docgate/pkg/scoring"
	"github.com/jingkaihe/docgate/pkg/types/review"
)

func sequentialIDs() Option {
	n := 0
	return WithIDFunc(func() string {
		n++
		return fmt.Sprintf("q%d", n)
	})
}

func scoredSection(tmpl review.SectionTemplate, scores review.DimensionScores) *review.Section {
	sec := review.NewSection(tmpl)
	sec.Draft = "draft"
	scoring.Evaluate(sec, scores, 1, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	return sec
}

func scores(values []int, details map[review.Dimension][]string) review.DimensionScores {
	var s review.DimensionScores
	for i, d := range review.AllDimensions {
		s.Scores = append(s.Scores, review.DimensionScore{
			Dimension:     d,
			Value:         values[i],
			Justification: string(d) + " justification",
			Details:       details[d],
		})
	}
	return s
}

func TestResolveTiedWeakDimensions(t *testing.T) {
	sec := scoredSection(
		review.SectionTemplate{Name: "Data Sources", Threshold: 70},
		scores([]int{10, 10, 10, 10, 10}, nil),
	)
	require.Equal(t, review.StatusFailed, sec.Status)

	questions := NewResolver(sequentialIDs()).Resolve([]*review.Section{sec}, review.NewFactSet())
	require.Len(t, questions, 1)

	q := questions[0]
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, "data_sources", q.SectionID)
	assert.Equal(t, review.ReasonThresholdUnmet, q.Reason)
	assert.Equal(t, review.Completeness, q.Dimension)
	require.GreaterOrEqual(t, len(q.Weakest), 2)
	assert.Equal(t, []review.Dimension{review.Completeness, review.Specificity}, q.Weakest[:2])
	assert.Contains(t, q.Question, "completeness 10/20, specificity 10/20")
	assert.NotContains(t, q.Question, "more detail")
}

func TestResolveSkipsPassedSections(t *testing.T) {
	passed := scoredSection(
		review.SectionTemplate{Name: "Pain Points", Threshold: 75},
		scores([]int{18, 17, 18, 18, 18}, nil),
	)
	assert.Empty(t, NewResolver().Resolve([]*review.Section{passed}, review.NewFactSet()))
}

func TestResolveMissingFactsTakePrecedence(t *testing.T) {
	sec := scoredSection(
		review.SectionTemplate{Name: "Budget", RequiredFields: []string{"budget", "team_size"}, Threshold: 80},
		scores([]int{20, 20, 10, 20, 4}, nil),
	)
	facts := review.NewFactSet(review.Fact{Key: "team_size", Value: "6"})

	q, ok := NewResolver(sequentialIDs()).Question(sec, facts)
	require.True(t, ok)
	assert.Equal(t, review.ReasonMissingFact, q.Reason)
	assert.Equal(t, []string{"budget"}, q.MissingFields)
	assert.Contains(t, q.Question, "budget")
	assert.Contains(t, q.SuggestedPrompt, "budget: <value>")
	assert.Equal(t, review.AntiHallucination, q.Dimension)
}

func TestResolveCompletenessEnumeratesFields(t *testing.T) {
	sec := scoredSection(
		review.SectionTemplate{Name: "Approach", RequiredFields: []string{"architecture", "timeline", "owner"}, Threshold: 70},
		scores([]int{15, 15, 7, 15, 15}, map[review.Dimension][]string{
			review.Completeness: {"timeline", "owner"},
		}),
	)
	facts := review.NewFactSet(
		review.Fact{Key: "architecture", Value: "event driven"},
		review.Fact{Key: "timeline", Value: "Q3"},
		review.Fact{Key: "owner", Value: "Jana"},
	)

	q, ok := NewResolver().Question(sec, facts)
	require.True(t, ok)
	assert.Equal(t, review.Completeness, q.Dimension)
	assert.Equal(t, []string{"timeline", "owner"}, q.MissingFields)
	assert.Contains(t, q.Question, "timeline, owner")
	assert.NotContains(t, q.Question, "architecture")
}

func TestResolveAntiHallucinationQuotesClaims(t *testing.T) {
	claim := "Revenue grew by 42% at Globex."
	sec := scoredSection(
		review.SectionTemplate{Name: "Results", Threshold: 80},
		scores([]int{14, 16, 20, 16, 4}, map[review.Dimension][]string{
			review.AntiHallucination: {claim},
		}),
	)

	q, ok := NewResolver().Question(sec, review.NewFactSet())
	require.True(t, ok)
	assert.Equal(t, review.AntiHallucination, q.Dimension)
	assert.Equal(t, []string{claim}, q.Claims)
	assert.Contains(t, q.Question, `"Revenue grew by 42% at Globex."`)
	assert.Contains(t, q.Question, "retract")
}

func TestResolveWeakestDimensionBranches(t *testing.T) {
	tests := []struct {
		name      string
		values    []int
		dimension review.Dimension
		details   []string
		contains  []string
	}{
		{
			name:      "source grounding asks for sources",
			values:    []int{4, 16, 16, 16, 16},
			dimension: review.SourceGrounding,
			details:   []string{"The pilot cut detours by 30%.", "Drivers adopted the app in a week."},
			contains:  []string{`"The pilot cut detours by 30%."`, `"Drivers adopted the app in a week."`, "Which source supports"},
		},
		{
			name:      "specificity names generic phrases",
			values:    []int{16, 4, 16, 16, 16},
			dimension: review.Specificity,
			details:   []string{"the system", "many users"},
			contains:  []string{"generic wording (the system, many users)", "concrete system"},
		},
		{
			name:      "actionability lists hedges",
			values:    []int{16, 16, 16, 4, 16},
			dimension: review.Actionability,
			details:   []string{"probably", "might"},
			contains:  []string{"hedges with probably, might", "deliverables, owners, and dates"},
		},
		{
			name:      "actionability without hedges",
			values:    []int{16, 16, 16, 4, 16},
			dimension: review.Actionability,
			contains:  []string{"names no concrete actions.", "deliverables"},
		},
		{
			name:      "specificity without phrases",
			values:    []int{16, 4, 16, 16, 16},
			dimension: review.Specificity,
			contains:  []string{"generic wording (vague references)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec := scoredSection(
				review.SectionTemplate{Name: "Results", Threshold: 80},
				scores(tt.values, map[review.Dimension][]string{tt.dimension: tt.details}),
			)
			require.Equal(t, review.StatusFailed, sec.Status)

			q, ok := NewResolver().Question(sec, review.NewFactSet())
			require.True(t, ok)
			assert.Equal(t, review.ReasonThresholdUnmet, q.Reason)
			assert.Equal(t, tt.dimension, q.Dimension)
			assert.Equal(t, tt.details, q.Claims)
			assert.Empty(t, q.MissingFields)
			assert.NotEmpty(t, q.SuggestedPrompt)
			for _, want := range tt.contains {
				assert.Contains(t, q.Question, want)
			}
			assert.Contains(t, q.Question, fmt.Sprintf("(weakest: %s 4/20", tt.dimension))
		})
	}
}

func TestResolveListsEveryClaim(t *testing.T) {
	claims := []string{
		"Revenue grew by 42% at Globex.",
		"Churn fell to 3%.",
		"The team shipped 14 releases.",
		"Support tickets halved in May.",
		"Onboarding takes 2 days.",
		"Costs dropped by 18,000 EUR.",
	}
	sec := scoredSection(
		review.SectionTemplate{Name: "Results", Threshold: 80},
		scores([]int{14, 16, 20, 16, 2}, map[review.Dimension][]string{
			review.AntiHallucination: claims,
		}),
	)

	q, ok := NewResolver().Question(sec, review.NewFactSet())
	require.True(t, ok)
	assert.Equal(t, claims, q.Claims)
	for _, claim := range claims {
		assert.Contains(t, q.Question, fmt.Sprintf("%q", claim))
	}
}

func TestResolvePassedSectionWithMissingFacts(t *testing.T) {
	tmpl := review.SectionTemplate{Name: "Budget", RequiredFields: []string{"client_name", "budget"}, Threshold: 60}
	client := review.Fact{Key: "client_name", Value: "Acme Logistics"}
	budget := review.Fact{Key: "budget", Value: "50,000 EUR"}

	tests := []struct {
		name    string
		facts   review.FactSet
		missing []string
	}{
		{name: "one fact missing", facts: review.NewFactSet(client), missing: []string{"budget"}},
		{name: "no facts", facts: review.NewFactSet(), missing: []string{"client_name", "budget"}},
		{name: "all facts present", facts: review.NewFactSet(client, budget)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec := scoredSection(tmpl, scores([]int{18, 18, 10, 18, 18}, nil))
			require.Equal(t, review.StatusPassed, sec.Status)

			q, ok := NewResolver(sequentialIDs()).Question(sec, tt.facts)
			if len(tt.missing) == 0 {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, "q1", q.ID)
			assert.Equal(t, review.ReasonMissingFact, q.Reason)
			assert.Equal(t, review.Completeness, q.Dimension)
			assert.Equal(t, tt.missing, q.MissingFields)
			assert.Contains(t, q.Question, "passed review")
			assert.Contains(t, q.Question, OverrideAnswer)
			for _, key := range tt.missing {
				assert.Contains(t, q.SuggestedPrompt, key+": <value>")
			}
		})
	}
}

func TestEmptyDraftQuestion(t *testing.T) {
	sec := review.NewSection(review.SectionTemplate{Name: "Goal", Threshold: 60})
	sec.Status = review.StatusFailed
	sec.EmptyDraft = true
	sec.Attempts = 3

	q, ok := NewResolver().Question(sec, review.NewFactSet())
	require.True(t, ok)
	assert.Equal(t, review.ReasonEmptyDraft, q.Reason)
	assert.Contains(t, q.Question, "3 attempts")
	assert.NotEmpty(t, q.ID)
}

func TestIsOverride(t *testing.T) {
	assert.True(t, IsOverride("proceed anyway"))
	assert.True(t, IsOverride("  Proceed Anyway! "))
	assert.True(t, IsOverride("trotzdem fortfahren"))
	assert.False(t, IsOverride("proceed"))
	assert.False(t, IsOverride("the budget is 50k, proceed anyway"))
}
