package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BTreeMap/CravingCompanion/internal/config"
)

// cfg is filled by the root command before any subcommand runs.
var cfg config.Config

var rootCmd = &cobra.Command{
	Use:          "craving-companion",
	Short:        "Craving Companion walks users through a scripted craving-relief session",
	Long:         `Craving Companion serves a five-stage coaching flow. Each turn is generated by a configured LLM provider and falls back to the static stage script.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to an optional .env file")
	rootCmd.PersistentFlags().String("script", "", "Stage script document (overrides SCRIPT_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "text or json (overrides LOG_FORMAT)")
}

func loadConfig(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	loaded, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("script"); v != "" {
		loaded.ScriptPath = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		loaded.LogLevel = v
	}
	if v, _ := flags.GetString("log-format"); v != "" {
		loaded.LogFormat = v
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.SetDefault(config.NewLogger(cmd.ErrOrStderr(), loaded.LogLevel, loaded.LogFormat))
	cfg = loaded
	return nil
}
