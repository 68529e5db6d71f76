// Package cmd implements the CLI commands for halftime.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/halftimetv/halftime/internal/config"
	"github.com/halftimetv/halftime/internal/observability"
	"github.com/halftimetv/halftime/internal/version"
)

var (
	// cfgFile holds the config file path from the CLI flag.
	cfgFile string
	// cfg is loaded once in the persistent pre-run and shared by all
	// subcommands.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "halftime",
	Short:   "Ad placement and video composition pipeline",
	Version: version.Short(),
	Long: `halftime places ads inside video content instead of around it.

It parses subtitles to find dialogue gaps, asks a language model (with
vision verification) where an ad fits naturally, regenerates the
surrounding footage with the product composited in, and serves the
result as an HLS stream with the edited segments spliced into place.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	}

	// These flags are NOT bound to viper. They override the loaded
	// config only when explicitly set, preserving the priority:
	// CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/halftime, $HOME/.halftime)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig loads configuration and installs the default logger.
func initConfig() error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ := rootCmd.PersistentFlags().GetString("log-level")
		c.Logging.Level = strings.ToLower(level)
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ := rootCmd.PersistentFlags().GetString("log-format")
		c.Logging.Format = strings.ToLower(format)
	}
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(c.Logging, os.Stderr)
	observability.SetDefault(logger)

	cfg = c
	return nil
}
