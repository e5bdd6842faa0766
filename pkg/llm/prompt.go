package llm

import (
	"embed"
	"io/fs"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/review"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	systemTemplate  = "templates/system.tmpl"
	sectionTemplate = "templates/section.tmpl"
)

// PromptContext is the data both prompt templates are rendered with
type PromptContext struct {
	Skill          string
	LanguageName   string
	StyleGuide     string
	Section        reviewtypes.SectionTemplate
	Facts          []reviewtypes.Fact
	Missing        []string
	Clarifications []string
	PreviousDraft  string
}

// NewPromptContext builds the template data for a generate request
func NewPromptContext(req review.GenerateRequest) *PromptContext {
	return &PromptContext{
		Skill:          req.Skill,
		LanguageName:   languageName(req.Language),
		StyleGuide:     strings.TrimSpace(req.StyleGuide),
		Section:        req.Template,
		Facts:          req.Facts.All(),
		Missing:        req.Facts.Missing(req.Template.RequiredFields),
		Clarifications: req.Clarifications,
		PreviousDraft:  strings.TrimSpace(req.PreviousDraft),
	}
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "de":
		return "German"
	default:
		return "English"
	}
}

// Renderer renders the system and section prompts
type Renderer struct {
	templates *template.Template
	parseErr  error
}

// NewRenderer parses every .tmpl file under templates/ in fsys
func NewRenderer(fsys fs.FS) *Renderer {
	r := &Renderer{}
	r.templates, r.parseErr = parseTemplates(fsys)
	return r
}

var defaultRenderer = NewRenderer(templateFS)

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	paths, err := fs.Glob(fsys, "templates/*.tmpl")
	if err != nil {
		return nil, errors.Wrap(err, "failed to collect template paths")
	}

	templates := template.New("templates").Funcs(template.FuncMap{
		"join": strings.Join,
	})
	for _, path := range paths {
		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read template file %s", path)
		}
		if _, err := templates.New(path).Parse(string(content)); err != nil {
			return nil, errors.Wrapf(err, "failed to parse template %s", path)
		}
	}
	return templates, nil
}

// Render renders a named template with the provided context
func (r *Renderer) Render(name string, ctx *PromptContext) (string, error) {
	if r.parseErr != nil {
		return "", errors.Wrap(r.parseErr, "failed to initialize templates")
	}
	if r.templates.Lookup(name) == nil {
		return "", errors.Errorf("template %s not found", name)
	}

	var buf strings.Builder
	if err := r.templates.ExecuteTemplate(&buf, name, ctx); err != nil {
		return "", errors.Wrapf(err, "failed to execute template %s", name)
	}
	return strings.TrimSpace(buf.String()), nil
}

// BuildPrompt renders the system and user prompts for a request
func (r *Renderer) BuildPrompt(req review.GenerateRequest) (system string, prompt string, err error) {
	ctx := NewPromptContext(req)
	if system, err = r.Render(systemTemplate, ctx); err != nil {
		return "", "", err
	}
	if prompt, err = r.Render(sectionTemplate, ctx); err != nil {
		return "", "", err
	}
	return system, prompt, nil
}
