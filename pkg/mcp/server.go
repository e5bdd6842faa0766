// Package mcp serves the section scorer to agents over the Model Context
// Protocol, so a drafting agent can check its own output before handing it
// to a review run.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/pkg/errors"

	"github.com/jingkaihe/docgate/pkg/facts"
	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/review"
	"github.com/jingkaihe/docgate/pkg/skills"
	reviewtypes "github.com/jingkaihe/docgate/pkg/types/review"
	"github.com/jingkaihe/docgate/pkg/version"
)

const (
	// ScoreSectionTool returns the five dimension scores and the composite
	ScoreSectionTool = "score_section"
	// EvaluateSectionTool additionally returns notes and the gap question
	EvaluateSectionTool = "evaluate_section"

	defaultThreshold = 70
	inlineSource     = "tool call"
)

// ToolServer registers the scoring tools on an MCP server
type ToolServer struct {
	controller *review.Controller
	discovery  *skills.Discovery
	server     *server.MCPServer
}

// NewToolServer creates the tool server. discovery may be nil, in which
// case sections must be described inline.
func NewToolServer(controller *review.Controller, discovery *skills.Discovery) *ToolServer {
	s := &ToolServer{
		controller: controller,
		discovery:  discovery,
		server: server.NewMCPServer(
			"docgate",
			version.Get().Version,
			server.WithToolCapabilities(false),
		),
	}

	s.server.AddTool(mcpsdk.NewTool(ScoreSectionTool,
		append([]mcpsdk.ToolOption{
			mcpsdk.WithDescription("Score a section draft on source grounding, specificity, completeness, actionability and anti-hallucination (0-20 each) and return the composite (0-100)."),
		}, sectionOptions()...)...,
	), s.handleScoreSection)

	s.server.AddTool(mcpsdk.NewTool(EvaluateSectionTool,
		append([]mcpsdk.ToolOption{
			mcpsdk.WithDescription("Score a section draft against its threshold. A failing draft also gets the clarifying question a review run would ask the user."),
		}, sectionOptions()...)...,
	), s.handleEvaluateSection)

	return s
}

func sectionOptions() []mcpsdk.ToolOption {
	return []mcpsdk.ToolOption{
		mcpsdk.WithString("draft",
			mcpsdk.Description("Markdown text of the section draft"),
			mcpsdk.Required(),
		),
		mcpsdk.WithString("skill",
			mcpsdk.Description("Skill whose section template to use, e.g. scope-document"),
		),
		mcpsdk.WithString("section",
			mcpsdk.Description("Section id or name. With a skill it selects the template, otherwise it names an inline template"),
			mcpsdk.Required(),
		),
		mcpsdk.WithArray("required_fields",
			mcpsdk.Description("Fact keys the section must cover (inline templates only)"),
			mcpsdk.Items(map[string]any{"type": "string"}),
		),
		mcpsdk.WithNumber("threshold",
			mcpsdk.Description(fmt.Sprintf("Passing composite, 0-100. Overrides the template; inline default %d", defaultThreshold)),
		),
		mcpsdk.WithObject("facts",
			mcpsdk.Description("Facts as key to value strings"),
		),
		mcpsdk.WithArray("fact_files",
			mcpsdk.Description("Glob patterns of fact files (json, yaml, md, html) to load"),
			mcpsdk.Items(map[string]any{"type": "string"}),
		),
	}
}

// ServeStdio serves the tools on stdin and stdout until the client disconnects
func (s *ToolServer) ServeStdio() error {
	return server.ServeStdio(s.server)
}

// MCPServer returns the underlying server
func (s *ToolServer) MCPServer() *server.MCPServer {
	return s.server
}

type sectionArgs struct {
	Draft          string            `json:"draft"`
	Skill          string            `json:"skill"`
	Section        string            `json:"section"`
	RequiredFields []string          `json:"required_fields"`
	Threshold      *int              `json:"threshold"`
	Facts          map[string]string `json:"facts"`
	FactFiles      []string          `json:"fact_files"`
}

func decodeArgs(req mcpsdk.CallToolRequest) (sectionArgs, error) {
	var args sectionArgs
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return args, errors.Wrap(err, "failed to read arguments")
	}
	if err := json.Unmarshal(data, &args); err != nil {
		return args, errors.Wrap(err, "invalid arguments")
	}
	if strings.TrimSpace(args.Section) == "" {
		return args, errors.New("section is required")
	}
	if args.Threshold != nil && (*args.Threshold < 0 || *args.Threshold > 100) {
		return args, errors.Errorf("threshold must be between 0 and 100, got %d", *args.Threshold)
	}
	return args, nil
}

func (s *ToolServer) template(args sectionArgs) (reviewtypes.SectionTemplate, error) {
	var tmpl reviewtypes.SectionTemplate
	if args.Skill == "" {
		tmpl = reviewtypes.SectionTemplate{
			Name:           args.Section,
			RequiredFields: args.RequiredFields,
			Threshold:      defaultThreshold,
		}
	} else {
		if s.discovery == nil {
			return tmpl, errors.New("skills are not available on this server")
		}
		skill, err := s.discovery.GetSkill(args.Skill)
		if err != nil {
			return tmpl, err
		}
		found := false
		for _, sec := range skill.Sections {
			if sec.Key() == args.Section || strings.EqualFold(sec.Name, args.Section) {
				tmpl, found = sec, true
				break
			}
		}
		if !found {
			return tmpl, errors.Wrapf(reviewtypes.ErrUnknownSection, "%q in skill %s", args.Section, args.Skill)
		}
	}
	if args.Threshold != nil {
		tmpl.Threshold = *args.Threshold
	}
	return tmpl, nil
}

func factSet(args sectionArgs) (reviewtypes.FactSet, error) {
	set := reviewtypes.NewFactSet()
	if len(args.FactFiles) > 0 {
		loaded, err := facts.Load(args.FactFiles...)
		if err != nil {
			return set, err
		}
		set = loaded
	}

	var inline []reviewtypes.Fact
	for key, value := range args.Facts {
		inline = append(inline, reviewtypes.Fact{
			Key:    key,
			Value:  value,
			Source: reviewtypes.SourceRef{Document: inlineSource},
		})
	}
	// facts from files win over inline ones
	return set.With(inline...), nil
}

func (s *ToolServer) evaluate(ctx context.Context, tool string, req mcpsdk.CallToolRequest) (review.Evaluation, error) {
	args, err := decodeArgs(req)
	if err != nil {
		return review.Evaluation{}, err
	}
	tmpl, err := s.template(args)
	if err != nil {
		return review.Evaluation{}, err
	}
	set, err := factSet(args)
	if err != nil {
		return review.Evaluation{}, err
	}

	ev, err := s.controller.Evaluate(tmpl, args.Draft, set)
	if err != nil {
		return review.Evaluation{}, err
	}
	logger.G(logger.WithSection(ctx, tmpl.Key())).
		WithField("tool", tool).
		WithField("composite", ev.Composite.Value).
		WithField("threshold", ev.Composite.Threshold).
		Info("section evaluated")
	return ev, nil
}

func jsonResult(v any) (*mcpsdk.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode result")
	}
	return mcpsdk.NewToolResultText(string(data)), nil
}

// ScoreResult is the payload of score_section
type ScoreResult struct {
	Section   string                      `json:"section"`
	Scores    reviewtypes.DimensionScores `json:"scores"`
	Composite reviewtypes.CompositeScore  `json:"composite"`
}

func (s *ToolServer) handleScoreSection(ctx context.Context, req mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	ev, err := s.evaluate(ctx, ScoreSectionTool, req)
	if err != nil {
		return mcpsdk.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ScoreResult{Section: ev.Section, Scores: ev.Scores, Composite: ev.Composite})
}

func (s *ToolServer) handleEvaluateSection(ctx context.Context, req mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	ev, err := s.evaluate(ctx, EvaluateSectionTool, req)
	if err != nil {
		return mcpsdk.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ev)
}
