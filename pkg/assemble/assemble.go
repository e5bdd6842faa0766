// Package assemble turns the accepted sections of a finalized run into a
// Markdown or HTML document with a numbered table of contents.
package assemble

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/jingkaihe/docgate/pkg/review"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

var (
	fencedBlock    = regexp.MustCompile("(?s)```.*?```")
	leadingHeading = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*\s*$`)
)

// Document is the input of the renderers
type Document struct {
	Title    string
	Language string
	Sections []reviewtypes.AcceptedSection
}

// FromState builds a document from a finalized run. Runs in any other
// phase are refused.
func FromState(state *reviewtypes.ReviewState, title string) (Document, error) {
	accepted, err := review.Accepted(state)
	if err != nil {
		return Document{}, err
	}
	if title == "" {
		title = state.Skill
	}
	return Document{Title: title, Language: state.Language, Sections: accepted}, nil
}

func tocTitle(language string) string {
	if strings.EqualFold(language, "de") {
		return "Inhaltsverzeichnis"
	}
	return "Table of Contents"
}

// CleanSection removes fenced code blocks and a leading heading that
// repeats the section title.
func CleanSection(title, content string) string {
	content = strings.TrimSpace(fencedBlock.ReplaceAllString(content, ""))

	lines := strings.Split(content, "\n")
	if len(lines) > 0 {
		if m := leadingHeading.FindStringSubmatch(strings.TrimSpace(lines[0])); m != nil &&
			strings.EqualFold(strings.TrimSpace(m[1]), strings.TrimSpace(title)) {
			lines = lines[1:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Markdown renders the document with numbered sections in run order
func Markdown(doc Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)

	fmt.Fprintf(&b, "## %s\n\n", tocTitle(doc.Language))
	for i, sec := range doc.Sections {
		fmt.Fprintf(&b, "%d. [%s](#%s)\n", i+1, sec.Name, anchor(i+1, sec.Name))
	}

	for i, sec := range doc.Sections {
		fmt.Fprintf(&b, "\n## %d. %s\n\n", i+1, sec.Name)
		if body := CleanSection(sec.Name, sec.Text); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// anchor mirrors the heading ids goldmark generates for "N. Name":
// ASCII alphanumerics lower-cased, spaces and dashes turned into dashes,
// everything else dropped.
func anchor(n int, name string) string {
	var b strings.Builder
	for _, r := range fmt.Sprintf("%d. %s", n, name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return b.String()
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// HTML renders the Markdown document as a standalone HTML page
func HTML(doc Document) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(doc)), &body); err != nil {
		return "", errors.Wrap(err, "failed to render markdown")
	}

	lang := doc.Language
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="%s">
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(lang), html.EscapeString(doc.Title), body.String()), nil
}
