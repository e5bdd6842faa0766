// Package scoring implements the deterministic dimension scorer and the
// section evaluator. Scoring is a pure function of the draft text, the
// section template and the fact set.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

// minValueMatch is the shortest fact value matched as a plain substring.
// Shorter values are only matched through their numbers.
const minValueMatch = 3

// unsupportedPenalty is deducted from anti_hallucination per unsupported item.
const unsupportedPenalty = 4

// hedgePenalty is deducted from actionability per hedge.
const hedgePenalty = 2

// Scorer scores section drafts against a rubric.
type Scorer struct {
	rubric *Rubric
	stop   map[string]struct{}
}

// NewScorer creates a scorer. A nil rubric selects DefaultRubric.
func NewScorer(rubric *Rubric) *Scorer {
	if rubric == nil {
		rubric = DefaultRubric()
	}
	return &Scorer{
		rubric: rubric,
		stop:   rubric.stopSet(),
	}
}

type indexedFact struct {
	fact    review.Fact
	lower   string
	numbers map[string]struct{}
	terms   []string
}

type factIndex struct {
	facts   []indexedFact
	numbers map[string]struct{}
}

func (s *Scorer) index(facts review.FactSet) factIndex {
	idx := factIndex{numbers: make(map[string]struct{})}
	for _, f := range facts.All() {
		value := Normalize(f.Value)
		ix := indexedFact{
			fact:    f,
			lower:   lowerCollapse(value),
			numbers: make(map[string]struct{}),
			terms:   significantTerms(value, s.stop),
		}
		for _, n := range Numbers(value) {
			ix.numbers[n] = struct{}{}
			idx.numbers[n] = struct{}{}
		}
		idx.facts = append(idx.facts, ix)
	}
	return idx
}

type claim struct {
	text     string
	numbers  []string
	grounded bool
}

// IsEmpty reports whether a draft has no sentence with a word in it once
// markdown is stripped. Such a draft cannot be scored.
func IsEmpty(draft string) bool {
	return len(Sentences(Normalize(draft))) == 0
}

// Score evaluates draft along the five dimensions. An empty draft yields
// all zeros, the EMPTY_DRAFT flag and an *review.EmptyDraftError.
func (s *Scorer) Score(draft string, tmpl review.SectionTemplate, facts review.FactSet) (review.DimensionScores, error) {
	text := Normalize(draft)
	sentences := Sentences(text)
	if len(sentences) == 0 {
		return emptyScores(), &review.EmptyDraftError{Section: tmpl.Name}
	}

	idx := s.index(facts)
	claims := s.claims(sentences, idx)

	scores := review.DimensionScores{
		Scores: []review.DimensionScore{
			s.sourceGrounding(claims),
			s.specificity(text, sentences),
			s.completeness(text, tmpl, facts, idx),
			s.actionability(text, sentences),
			s.antiHallucination(claims, idx),
		},
	}
	return scores, nil
}

func emptyScores() review.DimensionScores {
	scores := review.DimensionScores{Flags: []review.Flag{review.FlagEmptyDraft}}
	for _, d := range review.AllDimensions {
		scores.Scores = append(scores.Scores, review.DimensionScore{
			Dimension:     d,
			Justification: "draft is empty",
		})
	}
	return scores
}

// claims picks out the factual sentences: those carrying a number or a
// proper noun. When no sentence qualifies every sentence is a claim.
func (s *Scorer) claims(sentences []string, idx factIndex) []claim {
	var out []claim
	for _, sentence := range sentences {
		nums := Numbers(sentence)
		if len(nums) == 0 && len(properNouns(sentence, s.stop)) == 0 {
			continue
		}
		out = append(out, claim{text: sentence, numbers: nums})
	}
	if len(out) == 0 {
		for _, sentence := range sentences {
			out = append(out, claim{text: sentence, numbers: Numbers(sentence)})
		}
	}
	for i := range out {
		out[i].grounded = s.grounded(out[i], idx)
	}
	return out
}

func (s *Scorer) grounded(c claim, idx factIndex) bool {
	lower := lowerCollapse(c.text)
	for _, f := range idx.facts {
		if len([]rune(f.lower)) >= minValueMatch && strings.Contains(lower, f.lower) {
			return true
		}
	}

	if len(c.numbers) > 0 {
		for _, n := range c.numbers {
			if _, ok := idx.numbers[n]; !ok {
				return false
			}
		}
		return true
	}

	terms := significantTerms(c.text, s.stop)
	if len(terms) == 0 {
		return false
	}
	need := min(2, len(terms))
	for _, f := range idx.facts {
		if sharedTerms(terms, f.terms) >= need {
			return true
		}
	}
	return false
}

func sharedTerms(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func ratioScore(num, den int) int {
	if den == 0 {
		return 0
	}
	return review.ClampScore(int(math.Round(float64(review.MaxDimensionScore) * float64(num) / float64(den))))
}

func (s *Scorer) sourceGrounding(claims []claim) review.DimensionScore {
	grounded := 0
	var ungrounded []string
	for _, c := range claims {
		if c.grounded {
			grounded++
			continue
		}
		ungrounded = append(ungrounded, c.text)
	}
	return review.DimensionScore{
		Dimension:     review.SourceGrounding,
		Value:         ratioScore(grounded, len(claims)),
		Justification: fmt.Sprintf("%d of %d claims matched to supplied facts", grounded, len(claims)),
		Details:       ungrounded,
	}
}

func (s *Scorer) specificity(text string, sentences []string) review.DimensionScore {
	count, found := countPhrases(text, s.rubric.Placeholders)
	ratio := 1 - float64(count)/float64(len(sentences))
	if ratio < 0 {
		ratio = 0
	}
	value := review.ClampScore(int(math.Round(float64(review.MaxDimensionScore) * ratio)))
	justification := fmt.Sprintf("%d generic placeholder phrases across %d sentences", count, len(sentences))
	if len(found) > 0 {
		justification += ": " + strings.Join(found, ", ")
	}
	return review.DimensionScore{
		Dimension:     review.Specificity,
		Value:         value,
		Justification: justification,
		Details:       found,
	}
}

func (s *Scorer) completeness(text string, tmpl review.SectionTemplate, facts review.FactSet, idx factIndex) review.DimensionScore {
	if len(tmpl.RequiredFields) == 0 {
		return review.DimensionScore{
			Dimension:     review.Completeness,
			Value:         review.MaxDimensionScore,
			Justification: "section declares no required fields",
		}
	}

	lower := lowerCollapse(text)
	draftNumbers := make(map[string]struct{})
	for _, n := range Numbers(text) {
		draftNumbers[n] = struct{}{}
	}
	draftTerms := significantTerms(text, s.stop)

	var unaddressed []string
	for _, key := range tmpl.RequiredFields {
		f, ok := facts.Get(key)
		if !ok || !s.represented(f, lower, draftNumbers, draftTerms) {
			unaddressed = append(unaddressed, key)
		}
	}

	covered := len(tmpl.RequiredFields) - len(unaddressed)
	justification := fmt.Sprintf("%d of %d required fields represented", covered, len(tmpl.RequiredFields))
	if len(unaddressed) > 0 {
		justification += "; missing " + strings.Join(unaddressed, ", ")
	}
	return review.DimensionScore{
		Dimension:     review.Completeness,
		Value:         ratioScore(covered, len(tmpl.RequiredFields)),
		Justification: justification,
		Details:       unaddressed,
	}
}

func (s *Scorer) represented(f review.Fact, lowerDraft string, draftNumbers map[string]struct{}, draftTerms []string) bool {
	value := Normalize(f.Value)
	lowerValue := lowerCollapse(value)
	if lowerValue == "" {
		return false
	}
	if len([]rune(lowerValue)) >= minValueMatch && strings.Contains(lowerDraft, lowerValue) {
		return true
	}

	if nums := Numbers(value); len(nums) > 0 {
		all := true
		for _, n := range nums {
			if _, ok := draftNumbers[n]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}

	terms := significantTerms(value, s.stop)
	if len(terms) == 0 {
		return false
	}
	return sharedTerms(terms, draftTerms) >= min(2, len(terms))
}

func (s *Scorer) actionability(text string, sentences []string) review.DimensionScore {
	actionable := 0
	for _, sentence := range sentences {
		verbs, _ := countPhrases(sentence, s.rubric.Verbs)
		deliverables, _ := countPhrases(sentence, s.rubric.Deliverables)
		if verbs+deliverables > 0 {
			actionable++
		}
	}
	hedges, found := countPhrases(text, s.rubric.Hedges)

	value := ratioScore(actionable, len(sentences)) - hedgePenalty*hedges
	justification := fmt.Sprintf("%d of %d sentences name a concrete action or deliverable, %d hedges", actionable, len(sentences), hedges)
	return review.DimensionScore{
		Dimension:     review.Actionability,
		Value:         review.ClampScore(value),
		Justification: justification,
		Details:       found,
	}
}

// antiHallucination deducts points for every distinct number not found in
// any fact and every numberless claim that could not be grounded.
func (s *Scorer) antiHallucination(claims []claim, idx factIndex) review.DimensionScore {
	seenNumbers := make(map[string]struct{})
	var untraceable []string
	var unsupported []string
	seenClaims := make(map[string]struct{})

	addClaim := func(text string) {
		if _, ok := seenClaims[text]; ok {
			return
		}
		seenClaims[text] = struct{}{}
		unsupported = append(unsupported, text)
	}

	for _, c := range claims {
		if len(c.numbers) == 0 {
			if !c.grounded {
				untraceable = append(untraceable, c.text)
				addClaim(c.text)
			}
			continue
		}
		for _, n := range c.numbers {
			if _, ok := idx.numbers[n]; ok {
				continue
			}
			if _, ok := seenNumbers[n]; ok {
				continue
			}
			seenNumbers[n] = struct{}{}
			untraceable = append(untraceable, n)
			addClaim(c.text)
		}
	}

	value := review.MaxDimensionScore - unsupportedPenalty*len(untraceable)
	justification := "every claim traceable to a supplied fact"
	if len(untraceable) > 0 {
		justification = fmt.Sprintf("%d unsupported numbers or claims not traceable to any fact", len(untraceable))
	}
	return review.DimensionScore{
		Dimension:     review.AntiHallucination,
		Value:         review.ClampScore(value),
		Justification: justification,
		Details:       unsupported,
	}
}
