package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/docgate/pkg/presenter"
	"github.com/jingkaihe/docgate/pkg/store"
)

// AssembleConfig holds the configuration for the assemble command
type AssembleConfig struct {
	Title  string
	Output string
	Format string
}

// NewAssembleConfig creates a new AssembleConfig with default values
func NewAssembleConfig() *AssembleConfig {
	return &AssembleConfig{Format: "markdown"}
}

var assembleCmd = &cobra.Command{
	Use:   "assemble <run-id>",
	Short: "Write the document of a finalized run",
	Long: `Assemble the accepted sections of a finalized run into one document with a table of
contents. Runs that are not finalized are refused.

Examples:
  docgate assemble 3f2a -o debrief.md
  docgate assemble 3f2a --format html --title "Kickoff Acme" -o kickoff.html`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getAssembleConfigFromFlags(cmd)
		if err := runAssembleCommand(ctx, args[0], config); err != nil {
			presenter.Error(err, "Failed to assemble document")
			os.Exit(1)
		}
	},
}

func init() {
	defaults := NewAssembleConfig()
	assembleCmd.Flags().String("title", defaults.Title, "Document title, defaults to the skill name")
	assembleCmd.Flags().StringP("output", "o", defaults.Output, "Output file, stdout when empty")
	assembleCmd.Flags().String("format", defaults.Format, "Document format: markdown or html")
}

func getAssembleConfigFromFlags(cmd *cobra.Command) *AssembleConfig {
	config := NewAssembleConfig()
	if v, err := cmd.Flags().GetString("title"); err == nil {
		config.Title = v
	}
	if v, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = v
	}
	if v, err := cmd.Flags().GetString("format"); err == nil {
		config.Format = v
	}
	return config
}

func runAssembleCommand(ctx context.Context, id string, config *AssembleConfig) error {
	if err := validateFormat(config.Format); err != nil {
		return err
	}

	st, err := store.NewFromViper(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to open run store")
	}
	defer st.Close()

	state, err := st.Load(ctx, id)
	if err != nil {
		return err
	}
	return writeDocument(state, config.Title, config.Format, config.Output)
}
