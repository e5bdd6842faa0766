package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/server"
	"github.com/jingkaihe/docgate/pkg/store"
)

// ServeConfig holds configuration for the serve command
type ServeConfig struct {
	Host string
	Port int
}

// NewServeConfig creates a new ServeConfig with default values
func NewServeConfig() *ServeConfig {
	return &ServeConfig{
		Host: "localhost",
		Port: 8080,
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API over HTTP",
	Long: `Start a local HTTP server for inspecting runs, answering their open questions and
downloading finalized documents. Runs are read from and written to the configured store.

The API is available at http://localhost:8080/api by default.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getServeConfigFromFlags(cmd)
		runServeCommand(ctx, config)
	},
}

func init() {
	defaults := NewServeConfig()
	serveCmd.Flags().String("host", defaults.Host, "Host to bind the API server to")
	serveCmd.Flags().Int("port", defaults.Port, "Port to bind the API server to")
}

func getServeConfigFromFlags(cmd *cobra.Command) *ServeConfig {
	config := NewServeConfig()
	if host, err := cmd.Flags().GetString("host"); err == nil {
		config.Host = host
	}
	if port, err := cmd.Flags().GetInt("port"); err == nil {
		config.Port = port
	}
	return config
}

func runServeCommand(ctx context.Context, config *ServeConfig) {
	logger.G(ctx).WithFields(map[string]interface{}{
		"host": config.Host,
		"port": config.Port,
	}).Info("starting review API server")

	st, err := store.NewFromViper(ctx)
	if err != nil {
		presenter.Error(err, "failed to open run store")
		os.Exit(1)
	}
	defer st.Close()

	// runs of different skills share one server, so no style guide is applied
	controller, err := newController(ctx, st, "")
	if err != nil {
		presenter.Error(err, "failed to create review controller")
		os.Exit(1)
	}

	srv, err := server.NewServer(&server.ServerConfig{Host: config.Host, Port: config.Port}, st, controller)
	if err != nil {
		presenter.Error(err, "failed to create API server")
		os.Exit(1)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			logger.G(ctx).WithError(closeErr).Error("failed to close API server")
		}
	}()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	presenter.Success(fmt.Sprintf("Review API listening on http://%s:%d/api", config.Host, config.Port))
	presenter.Info("Press Ctrl+C to stop the server")

	if err := srv.Start(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("API server error")
		presenter.Error(err, "API server failed")
		os.Exit(1)
	}

	presenter.Info("API server stopped")
}
