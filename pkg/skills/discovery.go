package skills

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
	"gopkg.in/yaml.v3"

	"github.com/jingkaihe/docgate/pkg/types/review"
)

const (
	skillFileName    = "SKILL.md"
	sectionsFileName = "sections.yaml"
)

//go:embed builtin
var builtinFS embed.FS

// Discovery handles skill discovery from configured directories
type Discovery struct {
	skillDirs []string
	builtins  bool
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithSkillDirs sets custom skill directories
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) error {
		d.skillDirs = dirs
		return nil
	}
}

// WithBuiltins toggles the skills embedded in the binary
func WithBuiltins(enabled bool) Option {
	return func(d *Discovery) error {
		d.builtins = enabled
		return nil
	}
}

// WithDefaultDirs initializes with default skill directories
func WithDefaultDirs() Option {
	return func(d *Discovery) error {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get user home directory")
		}
		d.skillDirs = []string{
			"./.docgate/skills",                          // Repo-local (highest precedence)
			filepath.Join(homeDir, ".docgate", "skills"), // User-global
		}
		return nil
	}
}

// NewDiscovery creates a new skill discovery instance. Builtin skills are
// enabled unless an option turns them off.
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{builtins: true}

	if len(opts) == 0 {
		if err := WithDefaultDirs()(d); err != nil {
			return nil, err
		}
	} else {
		for _, opt := range opts {
			if err := opt(d); err != nil {
				return nil, err
			}
		}
	}

	return d, nil
}

// DiscoverSkills finds all available skills. Earlier directories win over
// later ones and every directory wins over the builtins.
func (d *Discovery) DiscoverSkills() (map[string]*Skill, error) {
	skills := make(map[string]*Skill)

	for _, dir := range d.skillDirs {
		d.discoverSkillsFromDir(dir, skills)
	}

	if d.builtins {
		entries, err := fs.ReadDir(builtinFS, "builtin")
		if err != nil {
			return nil, errors.Wrap(err, "failed to read builtin skills")
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			skill, err := loadSkill(builtinFS, path.Join("builtin", entry.Name()))
			if err != nil {
				return nil, errors.Wrapf(err, "invalid builtin skill %s", entry.Name())
			}
			if _, exists := skills[skill.Name]; !exists {
				skill.Builtin = true
				skills[skill.Name] = skill
			}
		}
	}

	return skills, nil
}

func (d *Discovery) discoverSkillsFromDir(dir string, skills map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())

		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}

		skill, err := loadSkill(os.DirFS(entryPath), ".")
		if err != nil {
			continue
		}

		if _, exists := skills[skill.Name]; !exists {
			skill.Directory = entryPath
			skills[skill.Name] = skill
		}
	}
}

// GetSkill returns a specific skill by name
func (d *Discovery) GetSkill(name string) (*Skill, error) {
	skills, err := d.DiscoverSkills()
	if err != nil {
		return nil, err
	}

	skill, exists := skills[name]
	if !exists {
		return nil, errors.Errorf("skill '%s' not found", name)
	}

	return skill, nil
}

// ListSkills returns every available skill sorted by name
func (d *Discovery) ListSkills() ([]*Skill, error) {
	skills, err := d.DiscoverSkills()
	if err != nil {
		return nil, err
	}

	out := make([]*Skill, 0, len(skills))
	for _, s := range skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadSkillDir loads a skill from a single directory, for validating a
// skill under development.
func LoadSkillDir(dir string) (*Skill, error) {
	skill, err := loadSkill(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}
	skill.Directory = dir
	return skill, nil
}

// loadSkill loads a skill from dir within fsys
func loadSkill(fsys fs.FS, dir string) (*Skill, error) {
	content, err := fs.ReadFile(fsys, path.Join(dir, skillFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "failed to parse markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("missing frontmatter")
	}

	var metadata Metadata
	if err := mapstructure.WeakDecode(metaData, &metadata); err != nil {
		return nil, errors.Wrap(err, "failed to decode frontmatter")
	}

	if metadata.Name == "" {
		return nil, errors.New("skill name is required in frontmatter")
	}
	if metadata.Description == "" {
		return nil, errors.New("skill description is required in frontmatter")
	}

	sections := metadata.Sections
	if len(sections) == 0 {
		sections, err = loadSectionsFile(fsys, path.Join(dir, sectionsFileName))
		if err != nil {
			return nil, err
		}
	}
	for i := range sections {
		if sections[i].ID == "" {
			sections[i].ID = review.Slug(sections[i].Name)
		}
	}

	return &Skill{
		Name:        metadata.Name,
		Description: metadata.Description,
		Language:    metadata.Language,
		Content:     extractBodyContent(string(content)),
		Sections:    sections,
	}, nil
}

func loadSectionsFile(fsys fs.FS, name string) ([]review.SectionTemplate, error) {
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sections file")
	}

	var file struct {
		Sections []review.SectionTemplate `yaml:"sections"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse sections file")
	}
	return file.Sections, nil
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	frontmatterEnd := -1

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			frontmatterEnd = i
			break
		}
	}

	if frontmatterEnd == -1 {
		return content
	}

	return strings.TrimLeft(strings.Join(lines[frontmatterEnd+1:], "\n"), "\n")
}
