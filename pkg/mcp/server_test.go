package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/skills"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
)

const (
	goodDraft = "Acme Logistics will build a routing prototype."
	badDraft  = "The system will probably help many users."
)

func newTestServer(t *testing.T) *ToolServer {
	t.Helper()
	discovery, err := skills.NewDiscovery(skills.WithBuiltins(true))
	require.NoError(t, err)
	controller := review.NewController(nil,
		review.WithClock(func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) }),
	)
	return NewToolServer(controller, discovery)
}

func callRequest(name string, args map[string]any) mcpsdk.CallToolRequest {
	req := mcpsdk.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcpsdk.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestScoreSectionInlineTemplate(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleScoreSection(context.Background(), callRequest(ScoreSectionTool, map[string]any{
		"draft":     goodDraft,
		"section":   "Goal",
		"threshold": 70,
		"facts":     map[string]any{"client_name": "Acme Logistics"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var score ScoreResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &score))
	assert.Equal(t, "Goal", score.Section)
	assert.Len(t, score.Scores.Scores, 5)
	assert.Equal(t, 100, score.Composite.Value)
	assert.True(t, score.Composite.Passed)
}

func TestEvaluateSectionReturnsQuestion(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleEvaluateSection(context.Background(), callRequest(EvaluateSectionTool, map[string]any{
		"draft":   badDraft,
		"section": "Goal",
		"facts":   map[string]any{"client_name": "Acme Logistics"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var ev review.Evaluation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &ev))
	assert.Equal(t, 36, ev.Composite.Value)
	assert.Equal(t, defaultThreshold, ev.Composite.Threshold)
	assert.Equal(t, reviewtypes.StatusFailed, ev.Status)
	require.NotNil(t, ev.Question)
	assert.Equal(t, "goal", ev.Question.SectionID)
	assert.NotEmpty(t, ev.Question.Question)
}

func TestEvaluateSectionFromSkill(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleEvaluateSection(context.Background(), callRequest(EvaluateSectionTool, map[string]any{
		"draft":   goodDraft,
		"skill":   "scope-document",
		"section": "Budget",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var ev review.Evaluation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &ev))
	assert.Equal(t, "budget", ev.SectionID)
	assert.Equal(t, 90, ev.Composite.Threshold)
	require.NotNil(t, ev.Question)
	assert.Equal(t, reviewtypes.ReasonMissingFact, ev.Question.Reason)
	assert.Equal(t, []string{"budget"}, ev.Question.MissingFields)
}

func TestEvaluateSectionLoadsFactFiles(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "crm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_name: Acme Logistics\n"), 0o644))

	result, err := s.handleEvaluateSection(context.Background(), callRequest(EvaluateSectionTool, map[string]any{
		"draft":           goodDraft,
		"section":         "Summary",
		"required_fields": []any{"client_name"},
		"fact_files":      []any{filepath.Join(dir, "*.yaml")},
		"facts":           map[string]any{"client_name": "Someone Else"},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	var ev review.Evaluation
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &ev))
	assert.True(t, ev.Composite.Passed)
	assert.Nil(t, ev.Question)
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{"missing section", map[string]any{"draft": goodDraft}, "section is required"},
		{"threshold out of range", map[string]any{"draft": goodDraft, "section": "Goal", "threshold": 120}, "threshold must be between 0 and 100"},
		{"unknown skill", map[string]any{"draft": goodDraft, "section": "Goal", "skill": "nope"}, "skill 'nope' not found"},
		{"unknown section", map[string]any{"draft": goodDraft, "section": "Pricing", "skill": "scope-document"}, "unknown section"},
		{"bad fact pattern", map[string]any{"draft": goodDraft, "section": "Goal", "fact_files": []any{"[broken"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleScoreSection(context.Background(), callRequest(ScoreSectionTool, tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.wantErr)
		})
	}
}

func TestNewToolServerWithoutSkills(t *testing.T) {
	s := NewToolServer(review.NewController(nil), nil)
	require.NotNil(t, s.MCPServer())

	result, err := s.handleScoreSection(context.Background(), callRequest(ScoreSectionTool, map[string]any{
		"draft":   goodDraft,
		"section": "Goal",
		"skill":   "scope-document",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "skills are not available")
}
