// Package skills discovers document skills. A skill is a directory with a
// SKILL.md file whose YAML frontmatter names the skill and declares its
// sections, and whose body is the style guide handed to the generator.
// Sections may also live in a sibling sections.yaml file.
package skills

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

// Skill represents a discovered skill with its metadata
type Skill struct {
	Name        string                   // Unique name from frontmatter
	Description string                   // One-line summary
	Language    string                   // Output language, "en" or "de"
	Directory   string                   // Full path to the skill directory, empty for builtins
	Builtin     bool                     // Shipped with the binary
	Content     string                   // Style guide: body of SKILL.md without frontmatter
	Sections    []review.SectionTemplate // Ordered section templates
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string                   `mapstructure:"name"`
	Description string                   `mapstructure:"description"`
	Language    string                   `mapstructure:"language"`
	Sections    []review.SectionTemplate `mapstructure:"sections"`
}

// Validate reports every problem with the skill definition at once
func (s *Skill) Validate() error {
	var result error
	if s.Name == "" {
		result = multierror.Append(result, errors.New("skill name is required"))
	}
	if len(s.Sections) == 0 {
		result = multierror.Append(result, errors.Errorf("skill %q declares no sections", s.Name))
	}
	switch s.Language {
	case "", "en", "de":
	default:
		result = multierror.Append(result, errors.Errorf("skill %q: unsupported language %q", s.Name, s.Language))
	}

	ids := make(map[string]int)
	for i, sec := range s.Sections {
		label := fmt.Sprintf("section %d", i+1)
		if sec.Name != "" {
			label = fmt.Sprintf("section %q", sec.Name)
		}
		if strings.TrimSpace(sec.Name) == "" {
			result = multierror.Append(result, errors.Errorf("%s: name is required", label))
		}
		if sec.Threshold < 0 || sec.Threshold > 100 {
			result = multierror.Append(result, errors.Errorf("%s: threshold %d outside [0,100]", label, sec.Threshold))
		}
		if sec.WordBudget.Min < 0 || sec.WordBudget.Max < 0 {
			result = multierror.Append(result, errors.Errorf("%s: word budget must not be negative", label))
		}
		if sec.WordBudget.Max > 0 && sec.WordBudget.Min > sec.WordBudget.Max {
			result = multierror.Append(result, errors.Errorf("%s: word budget min %d exceeds max %d", label, sec.WordBudget.Min, sec.WordBudget.Max))
		}
		for _, field := range sec.RequiredFields {
			if strings.TrimSpace(field) == "" {
				result = multierror.Append(result, errors.Errorf("%s: empty required field key", label))
			}
		}
		if key := sec.Key(); key != "" {
			if prev, dup := ids[key]; dup {
				result = multierror.Append(result, errors.Errorf("%s: id %q already used by section %d", label, key, prev))
			}
			ids[key] = i + 1
		}
	}
	return result
}

// FilterSections returns the templates whose id or name matches one of
// the glob patterns, in skill order. No patterns selects every section.
func (s *Skill) FilterSections(patterns ...string) ([]review.SectionTemplate, error) {
	if len(patterns) == 0 {
		return append([]review.SectionTemplate(nil), s.Sections...), nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid section pattern %q", p)
		}
		globs = append(globs, g)
	}

	var out []review.SectionTemplate
	for _, sec := range s.Sections {
		for _, g := range globs {
			if g.Match(sec.Key()) || g.Match(strings.ToLower(sec.Name)) {
				out = append(out, sec)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no section of skill %q matches %s", s.Name, strings.Join(patterns, ", "))
	}
	return out, nil
}

// Section returns the template with the given id
func (s *Skill) Section(id string) (review.SectionTemplate, bool) {
	for _, sec := range s.Sections {
		if sec.Key() == id {
			return sec, true
		}
	}
	return review.SectionTemplate{}, false
}
