package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/mcp"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/skills"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve section scoring as MCP tools over stdio",
	Long: `Start a Model Context Protocol server on stdin/stdout exposing two tools:

  score_section     scores a draft on the five confidence dimensions
  evaluate_section  scores a draft and returns the gap question when it fails

Sections come from an installed skill or are described inline by the caller.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()

		discovery, err := skills.NewDiscoveryFromConfig(ctx)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("skills unavailable, only inline sections can be scored")
			discovery = nil
		}

		controller, err := scoringController()
		if err != nil {
			presenter.Error(err, "Failed to configure scoring")
			os.Exit(1)
		}
		tools := mcp.NewToolServer(controller, discovery)
		if err := tools.ServeStdio(); err != nil {
			presenter.Error(err, "MCP server failed")
			os.Exit(1)
		}
	},
}
