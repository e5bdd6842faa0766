package assemble

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

func finalizedState() *reviewtypes.ReviewState {
	pain := reviewtypes.NewSection(reviewtypes.SectionTemplate{Name: "Pain Points", Threshold: 75})
	pain.Status = reviewtypes.StatusPassed
	pain.Draft = "## Pain Points\n\nManual route planning takes 3 hours per day.\n\n```json\n{\"debug\": true}\n```\n"

	data := reviewtypes.NewSection(reviewtypes.SectionTemplate{Name: "Datenquellen", Threshold: 70})
	data.Status = reviewtypes.StatusOverridden
	data.Draft = "SAP ERP und Salesforce."

	return &reviewtypes.ReviewState{
		ID:       "run-1",
		Skill:    "kickoff-presentation",
		Language: "de",
		Phase:    reviewtypes.PhaseFinalized,
		Sections: []*reviewtypes.Section{pain, data},
	}
}

func TestCleanSection(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{"duplicate heading", "Goal", "## goal\n\nShip it.", "Ship it."},
		{"different heading kept", "Goal", "## Context\nShip it.", "## Context\nShip it."},
		{"code blocks removed", "Goal", "Before.\n```\ncode\n```\nAfter.", "Before.\n\nAfter."},
		{"leading blank lines", "Goal", "\n\n# Goal #\nText", "Text"},
		{"empty", "Goal", "```\nonly code\n```", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanSection(tt.title, tt.content))
		})
	}
}

func TestMarkdown(t *testing.T) {
	doc, err := FromState(finalizedState(), "Kickoff Acme")
	require.NoError(t, err)

	expected := `# Kickoff Acme

## Inhaltsverzeichnis

1. [Pain Points](#1-pain-points)
2. [Datenquellen](#2-datenquellen)

## 1. Pain Points

Manual route planning takes 3 hours per day.

## 2. Datenquellen

SAP ERP und Salesforce.
`
	assert.Equal(t, expected, Markdown(doc))
}

func TestMarkdownEnglishTitleDefaultsToSkill(t *testing.T) {
	state := finalizedState()
	state.Language = "en"

	doc, err := FromState(state, "")
	require.NoError(t, err)
	assert.Equal(t, "kickoff-presentation", doc.Title)
	assert.Contains(t, Markdown(doc), "## Table of Contents")
}

func TestHTML(t *testing.T) {
	doc, err := FromState(finalizedState(), "Kickoff <Acme>")
	require.NoError(t, err)

	out, err := HTML(doc)
	require.NoError(t, err)
	assert.Contains(t, out, `<html lang="de">`)
	assert.Contains(t, out, "<title>Kickoff &lt;Acme&gt;</title>")
	assert.Contains(t, out, `<h2 id="1-pain-points">1. Pain Points</h2>`)
	assert.Contains(t, out, `<a href="#1-pain-points">Pain Points</a>`)
	assert.NotContains(t, out, "debug")
}

func TestFromStateRefusesUnfinishedRuns(t *testing.T) {
	state := finalizedState()
	state.Phase = reviewtypes.PhaseNeedsInput

	_, err := FromState(state, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, reviewtypes.ErrNotFinalized))
}
