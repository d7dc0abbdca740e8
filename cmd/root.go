package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"secscan/config"
	"secscan/logger"
)

var (
	cfgFile      string
	logLevelFlag string

	// cfg is loaded once in PersistentPreRunE and injected into every
	// component the subcommands build.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "secscan",
	Short: "Security scanner combining a static analyzer with LLM analysis",
	Long: `secscan orchestrates two independent threat detectors — the semgrep
static analyzer and an LLM-based semantic analyzer — over snippets, files
and directory trees, merges their findings, and optionally re-validates
them through a second LLM pass to suppress false positives.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		level := cfg.Logging.Level
		if logLevelFlag != "" {
			level = logLevelFlag
		}
		if err := logger.Init(level, cfg.Logging.Path); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/secscan/config.yaml or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (overrides config)")
}
