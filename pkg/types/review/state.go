// Package review defines the data model shared by the scorer, the gap
// resolver and the review loop controller: facts, sections, dimension
// scores, gap questions and the persisted review state of a run.
package review

import (
	"strings"
	"time"
)

// Phase is a state of the review loop state machine.
type Phase string

const (
	PhaseDrafting     Phase = "drafting"
	PhaseScoring      Phase = "scoring"
	PhaseNeedsInput   Phase = "needs_input"
	PhaseRegenerating Phase = "regenerating"
	PhaseFinalized    Phase = "finalized"
	PhaseCancelled    Phase = "cancelled"
)

// Terminal reports whether no further transition is possible
func (p Phase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseCancelled
}

// InProgress reports whether the run is inside a drafting or scoring pass
// and can be advanced without user input
func (p Phase) InProgress() bool {
	return p == PhaseDrafting || p == PhaseScoring || p == PhaseRegenerating
}

// GapReason classifies why a gap question was raised.
type GapReason string

const (
	ReasonThresholdUnmet GapReason = "threshold_unmet"
	ReasonMissingFact    GapReason = "missing_fact"
	ReasonEmptyDraft     GapReason = "empty_draft"
)

// GapQuestion is a targeted clarification request for one failing section.
type GapQuestion struct {
	ID        string    `json:"id"`
	Section   string    `json:"section"`
	SectionID string    `json:"section_id"`
	Reason    GapReason `json:"reason"`
	// Dimension is the worst-scoring dimension.
	Dimension Dimension `json:"dimension,omitempty"`
	// Weakest lists every dimension below the cutoff, lowest first.
	Weakest         []Dimension `json:"weakest,omitempty"`
	MissingFields   []string    `json:"missing_fields,omitempty"`
	Claims          []string    `json:"claims,omitempty"`
	Question        string      `json:"question"`
	SuggestedPrompt string      `json:"suggested_prompt"`
}

// AuditEntry records a notable event of a run.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Round   int       `json:"round"`
	Section string    `json:"section,omitempty"`
	Event   string    `json:"event"`
	Detail  string    `json:"detail,omitempty"`
}

// ReviewState is the process-wide state of one document-generation run.
// It is owned by the review controller; all mutation goes through it.
type ReviewState struct {
	ID        string        `json:"id"`
	Skill     string        `json:"skill"`
	Language  string        `json:"language,omitempty"`
	Phase     Phase         `json:"phase"`
	Round     int           `json:"round"`
	Sections  []*Section    `json:"sections"`
	Facts     FactSet       `json:"facts"`
	Questions []GapQuestion `json:"questions,omitempty"`
	Audit     []AuditEntry  `json:"audit,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Section looks up a section by id or by case-insensitive name
func (s *ReviewState) Section(ref string) (*Section, bool) {
	for _, sec := range s.Sections {
		if sec.ID() == ref {
			return sec, true
		}
	}
	for _, sec := range s.Sections {
		if strings.EqualFold(sec.Name(), strings.TrimSpace(ref)) {
			return sec, true
		}
	}
	return nil, false
}

// Failing returns the sections that are failed, in document order
func (s *ReviewState) Failing() []*Section {
	var out []*Section
	for _, sec := range s.Sections {
		if sec.Status == StatusFailed {
			out = append(out, sec)
		}
	}
	return out
}

// AllAccepted reports whether every section is passed or overridden
func (s *ReviewState) AllAccepted() bool {
	for _, sec := range s.Sections {
		if !sec.Status.Accepted() {
			return false
		}
	}
	return true
}

// Counts returns the number of sections per status
func (s *ReviewState) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, sec := range s.Sections {
		counts[sec.Status]++
	}
	return counts
}

// Summary is a lightweight listing entry for a stored run.
type Summary struct {
	ID         string    `json:"id" db:"id"`
	Skill      string    `json:"skill" db:"skill"`
	Phase      Phase     `json:"phase" db:"phase"`
	Round      int       `json:"round" db:"round"`
	Sections   int       `json:"sections" db:"section_count"`
	Passed     int       `json:"passed" db:"passed_count"`
	Failed     int       `json:"failed" db:"failed_count"`
	Overridden int       `json:"overridden" db:"overridden_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ToSummary builds the listing entry for the state
func (s *ReviewState) ToSummary() Summary {
	counts := s.Counts()
	return Summary{
		ID:         s.ID,
		Skill:      s.Skill,
		Phase:      s.Phase,
		Round:      s.Round,
		Sections:   len(s.Sections),
		Passed:     counts[StatusPassed],
		Failed:     counts[StatusFailed],
		Overridden: counts[StatusOverridden],
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

// SummaryRow is one line of the review summary table shown to the user.
type SummaryRow struct {
	Section   string      `json:"section"`
	SectionID string      `json:"section_id"`
	Composite int         `json:"composite"`
	Threshold int         `json:"threshold"`
	Status    Status      `json:"status"`
	Weakest   []Dimension `json:"weakest,omitempty"`
	Notes     []string    `json:"notes,omitempty"`
}

// ReviewSummary is the table of sections emitted to the user.
type ReviewSummary struct {
	RunID string       `json:"run_id"`
	Phase Phase        `json:"phase"`
	Round int          `json:"round"`
	Rows  []SummaryRow `json:"rows"`
}

// Response is what the user hands back when the loop is waiting for input.
type Response struct {
	// Answers maps a section id or name to free-text clarification.
	Answers map[string]string `json:"answers,omitempty"`
	// Facts maps a field key to a user-supplied value.
	Facts map[string]string `json:"facts,omitempty"`
	// Override accepts every failing section as is.
	Override bool `json:"override,omitempty"`
	// OverrideSections accepts the listed failing sections as is.
	OverrideSections []string `json:"override_sections,omitempty"`
	// Cancel aborts the run and discards all sections.
	Cancel bool `json:"cancel,omitempty"`
}

// Empty reports whether the response carries nothing actionable
func (r Response) Empty() bool {
	return len(r.Answers) == 0 && len(r.Facts) == 0 && !r.Override && len(r.OverrideSections) == 0 && !r.Cancel
}

// AcceptedSection is a finalized section handed to the document assembler.
type AcceptedSection struct {
	ID        string `json:"id"`
	Name      string `json:"section_name"`
	Text      string `json:"final_text"`
	Status    Status `json:"status"`
	Composite int    `json:"composite"`
}
