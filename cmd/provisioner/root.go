package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voice-assistant/provisioner/internal/config"
	"voice-assistant/provisioner/internal/telemetry"
)

var (
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Voice assistant provisioner",
	Long: `Provisioner prepares a machine to run the voice assistant.

It creates the Python virtual environment and installs the assistant's
dependencies, starts the Ollama model service in a container and pulls
the language model, and keeps the environment's dependencies in check.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment before config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogger(telemetry.LoggerOptions{Level: logLevel, Format: logFormat})

		var err error
		cfg, err = config.Load(cfgFile, envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Explicit flags take precedence over the config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Telemetry.LogFormat = logFormat
		}
		closer := initLogger(telemetry.LoggerOptions{
			Level:  cfg.Telemetry.LogLevel,
			Format: cfg.Telemetry.LogFormat,
			File:   cfg.Telemetry.LogFile,
		})

		app, err = buildAppContext(cmd.Context(), cfg)
		if err != nil {
			_ = closer.Close()
			return fmt.Errorf("building app context: %w", err)
		}
		app.logCloser = closer

		return nil
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app != nil {
			app.Close()
		}
		return nil
	}

	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(serverCmd)
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if app != nil {
			app.Close()
		}
		os.Exit(1)
	}
}

// initLogger installs the process logger. Logs go to stderr so command
// results on stdout stay machine-readable.
func initLogger(opts telemetry.LoggerOptions) io.Closer {
	logger, closer := telemetry.NewLogger(os.Stderr, opts)
	slog.SetDefault(logger)
	return closer
}
