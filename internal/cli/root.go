// Package cli implements the coopsched command line.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"coopsched/internal/config"
	"coopsched/internal/logging"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the coopsched CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coopsched",
		Short: "Cooperative priority task scheduler",
		Long:  "coopsched runs prioritized, time-sliced work on a single-threaded host loop.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load env file: %w", err)
			}

			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			if flagDebug {
				cfg.LogLevel = "debug"
			}
			logger = logging.FromConfig(cfg, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "config.yml", "Path to the YAML config file")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path to a dotenv file loaded before the config")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newConfigCmd(),
	)

	return root
}
