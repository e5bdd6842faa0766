package review

import "strings"

// Status is the lifecycle status of a section.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
	StatusOverridden Status = "overridden"
)

// Accepted reports whether the section may be included in the final document
func (s Status) Accepted() bool {
	return s == StatusPassed || s == StatusOverridden
}

// OverrideReason is recorded on every user override.
const OverrideReason = "user override"

// WordBudget bounds the length of a section draft. Zero means unbounded.
type WordBudget struct {
	Min int `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max int `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
}

// Check returns a short note when words falls outside the budget
func (b WordBudget) Check(words int) string {
	switch {
	case b.Min > 0 && words < b.Min:
		return "below word budget"
	case b.Max > 0 && words > b.Max:
		return "above word budget"
	default:
		return ""
	}
}

// SectionTemplate is the static, per-skill definition of a section.
type SectionTemplate struct {
	ID             string     `json:"id" yaml:"id" mapstructure:"id"`
	Name           string     `json:"name" yaml:"name" mapstructure:"name"`
	RequiredFields []string   `json:"required_fields,omitempty" yaml:"required_fields,omitempty" mapstructure:"required_fields"`
	WordBudget     WordBudget `json:"word_budget" yaml:"word_budget,omitempty" mapstructure:"word_budget"`
	Threshold      int        `json:"threshold" yaml:"threshold" mapstructure:"threshold" jsonschema:"minimum=0,maximum=100"`
	Guidance       string     `json:"guidance,omitempty" yaml:"guidance,omitempty" mapstructure:"guidance"`
}

// Key returns the identifier used to address the section
func (t SectionTemplate) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return Slug(t.Name)
}

// Slug turns a display name into a lower-case underscore identifier
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// Section is a named unit of output content tracked through the review loop.
type Section struct {
	Template       SectionTemplate `json:"template"`
	Draft          string          `json:"draft"`
	Status         Status          `json:"status"`
	History        []Revision      `json:"history,omitempty"`
	Clarifications []string        `json:"clarifications,omitempty"`
	OverrideReason string          `json:"override_reason,omitempty"`
	// Attempts counts generator calls, including empty ones.
	Attempts int `json:"attempts"`
	// EmptyDraft is set when the generator kept returning nothing.
	EmptyDraft bool `json:"empty_draft,omitempty"`
}

// NewSection creates a pending section from its template
func NewSection(t SectionTemplate) *Section {
	if t.ID == "" {
		t.ID = Slug(t.Name)
	}
	return &Section{
		Template: t,
		Status:   StatusPending,
	}
}

// Name returns the display name
func (s *Section) Name() string {
	return s.Template.Name
}

// ID returns the section identifier
func (s *Section) ID() string {
	return s.Template.Key()
}

// Latest returns the most recent revision, the only authoritative one
func (s *Section) Latest() (Revision, bool) {
	if len(s.History) == 0 {
		return Revision{}, false
	}
	return s.History[len(s.History)-1], true
}

// LatestComposite returns the latest composite value, or -1 if never scored
func (s *Section) LatestComposite() int {
	rev, ok := s.Latest()
	if !ok {
		return -1
	}
	return rev.Composite.Value
}

// Revision returns the revision with the given attempt number
func (s *Section) Revision(attempt int) (Revision, bool) {
	for _, rev := range s.History {
		if rev.Attempt == attempt {
			return rev, true
		}
	}
	return Revision{}, false
}

// NeedsWork reports whether the section must be regenerated or resolved
func (s *Section) NeedsWork() bool {
	return s.Status == StatusFailed || s.Status == StatusPending
}
