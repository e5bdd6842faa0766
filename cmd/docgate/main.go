package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/docgate/pkg/logger"
	"github.com/jingkaihe/docgate/pkg/presenter"
)

func init() {
	viper.SetEnvPrefix("DOCGATE")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.docgate")
	viper.AddConfigPath(".")

	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("review.max_empty_retries", 2)
	viper.SetDefault("review.concurrency", 4)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)

	// a missing config file is fine
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "docgate",
	Short: "Draft client documents section by section and gate each one on a confidence score",
	Long: `docgate drafts every section of a client document from a skill template, scores each
draft on five dimensions (source grounding, specificity, completeness, actionability and
anti-hallucination), and asks you targeted questions about the sections that fall below their
threshold until each one passes or you accept it as is.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			return err
		}
		logger.SetLogFormat(viper.GetString("log_format"))
		presenter.SetQuiet(viper.GetBool("quiet"))
		return nil
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	rootCmd.PersistentFlags().String("provider", "", "Section generator: anthropic, openai, google or static")
	rootCmd.PersistentFlags().String("model", "", "Model to draft with (overrides config)")
	rootCmd.PersistentFlags().Int("max-tokens", 0, "Maximum tokens per drafted section (overrides config)")
	rootCmd.PersistentFlags().String("profile", "", "Named provider profile from the config file")
	rootCmd.PersistentFlags().String("store", "", "Run store: json or sqlite")
	rootCmd.PersistentFlags().String("store-path", "", "Directory (json) or database file (sqlite) for runs")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: panic, fatal, error, warn, info, debug, trace")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format: fmt or json")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors and prompts")

	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))
	viper.BindPFlag("profile", rootCmd.PersistentFlags().Lookup("profile"))
	viper.BindPFlag("store.type", rootCmd.PersistentFlags().Lookup("store"))
	viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store-path"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	rootCmd.AddCommand(withTracing(scoreCmd))
	rootCmd.AddCommand(withTracing(reviewCmd))
	rootCmd.AddCommand(withTracing(resumeCmd))
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(withTracing(assembleCmd))
	rootCmd.AddCommand(skillCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	ctx := context.Background()
	shutdown, err := initTracing(ctx)
	if err != nil {
		logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
	} else {
		defer shutdown(ctx)
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		presenter.Error(err, "")
		if shutdown != nil {
			shutdown(ctx)
		}
		os.Exit(1)
	}
}
