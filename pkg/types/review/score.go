package review

import (
	"sort"
	"time"
)

// Dimension is one of the five fixed scoring axes.
type Dimension string

const (
	SourceGrounding   Dimension = "source_grounding"
	Specificity       Dimension = "specificity"
	Completeness      Dimension = "completeness"
	Actionability     Dimension = "actionability"
	AntiHallucination Dimension = "anti_hallucination"
)

// MaxDimensionScore is the ceiling of a single sub-score.
const MaxDimensionScore = 20

// WeakDimensionCutoff is the score below which a dimension is cited in gap questions.
const WeakDimensionCutoff = 12

// AllDimensions lists the dimensions in canonical order.
var AllDimensions = []Dimension{
	SourceGrounding,
	Specificity,
	Completeness,
	Actionability,
	AntiHallucination,
}

// tiePriority orders dimensions that share the same score. Lower wins.
var tiePriority = map[Dimension]int{
	Completeness:      0,
	Specificity:       1,
	AntiHallucination: 2,
	SourceGrounding:   3,
	Actionability:     4,
}

// Valid reports whether d is one of the five known dimensions
func (d Dimension) Valid() bool {
	_, ok := tiePriority[d]
	return ok
}

// Flag is a diagnostic raised by the scorer.
type Flag string

// FlagEmptyDraft marks an attempt whose draft text was empty.
const FlagEmptyDraft Flag = "EMPTY_DRAFT"

// DimensionScore is a single sub-score with its audit justification.
type DimensionScore struct {
	Dimension     Dimension `json:"dimension"`
	Value         int       `json:"value" jsonschema:"minimum=0,maximum=20"`
	Justification string    `json:"justification"`
	// Details carries the concrete items behind the score, such as
	// unsupported claims or unaddressed fields.
	Details []string `json:"details,omitempty"`
}

// ClampScore bounds v to [0, MaxDimensionScore]
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxDimensionScore {
		return MaxDimensionScore
	}
	return v
}

// DimensionScores is the full set of five sub-scores for one attempt.
type DimensionScores struct {
	Scores []DimensionScore `json:"scores"`
	Flags  []Flag           `json:"flags,omitempty"`
}

// Get returns the score for d
func (s DimensionScores) Get(d Dimension) (DimensionScore, bool) {
	for _, sc := range s.Scores {
		if sc.Dimension == d {
			return sc, true
		}
	}
	return DimensionScore{}, false
}

// Sum adds every sub-score after clamping each to [0,20]
func (s DimensionScores) Sum() int {
	total := 0
	for _, sc := range s.Scores {
		total += ClampScore(sc.Value)
	}
	return total
}

// HasFlag reports whether f was raised
func (s DimensionScores) HasFlag(f Flag) bool {
	for _, existing := range s.Flags {
		if existing == f {
			return true
		}
	}
	return false
}

// Ranked returns the scores ordered by value ascending, ties broken by
// the fixed dimension priority.
func (s DimensionScores) Ranked() []DimensionScore {
	ranked := make([]DimensionScore, len(s.Scores))
	copy(ranked, s.Scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := ClampScore(ranked[i].Value), ClampScore(ranked[j].Value)
		if vi != vj {
			return vi < vj
		}
		return tiePriority[ranked[i].Dimension] < tiePriority[ranked[j].Dimension]
	})
	return ranked
}

// Weakest returns every dimension scoring below WeakDimensionCutoff in
// ranked order. When none qualifies the single lowest dimension is returned.
func (s DimensionScores) Weakest() []DimensionScore {
	ranked := s.Ranked()
	var weak []DimensionScore
	for _, sc := range ranked {
		if ClampScore(sc.Value) < WeakDimensionCutoff {
			weak = append(weak, sc)
		}
	}
	if len(weak) == 0 && len(ranked) > 0 {
		weak = ranked[:1]
	}
	return weak
}

// CompositeScore is the aggregated 0-100 score of one section at one point in time.
type CompositeScore struct {
	Value     int       `json:"value" jsonschema:"minimum=0,maximum=100"`
	Threshold int       `json:"threshold"`
	Passed    bool      `json:"passed"`
	Attempt   int       `json:"attempt"`
	At        time.Time `json:"at"`
}

// Revision is one immutable entry of a section's history.
type Revision struct {
	Attempt   int             `json:"attempt"`
	Round     int             `json:"round"`
	Draft     string          `json:"draft"`
	Scores    DimensionScores `json:"scores"`
	Composite CompositeScore  `json:"composite"`
	At        time.Time       `json:"at"`
}
