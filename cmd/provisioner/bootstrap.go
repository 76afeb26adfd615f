package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"voice-assistant/provisioner/internal/orchestrator"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Create the Python environment and install dependencies",
	Long: `Env prepares the assistant's Python environment:

  1. checks the interpreter version
  2. creates the virtual environment
  3. upgrades pip and installs requirements.txt
  4. creates the log directory
  5. copies .env.example to .env unless .env already exists

The first failing step stops the run. The result is printed as JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, orchestrator.PipelineEnvironment, cfg.Environment.Timeout)
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Start the model service and pull the model",
	Long: `Model starts the Ollama container, waits until its API answers,
pulls the configured model and prints the model inventory.

The readiness wait is bounded by model.ready_timeout (0 waits until
interrupted). A failed pull is not rolled back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, orchestrator.PipelineModel, 0)
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the environment and model pipelines in order",
	Long: `Bootstrap runs env followed by model as a single fail-stop sequence,
prints a JSON result to stdout, and exits 0 on success or non-zero on
failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, orchestrator.PipelineAll, 0)
	},
}

// runPipeline runs one pipeline until it finishes, the timeout elapses or
// the process is interrupted.
func runPipeline(cmd *cobra.Command, pipeline string, timeout time.Duration) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slog.InfoContext(ctx, "starting pipeline", "pipeline", pipeline)

	out := cmd.OutOrStdout()
	result, err := app.orchestrator.Run(ctx, pipeline)
	if err != nil {
		printError(out, err)
		return fmt.Errorf("%s failed: %w", pipeline, err)
	}

	printJSON(out, result)

	if result.Status == orchestrator.StatusError {
		return fmt.Errorf("%s completed with errors: %s", pipeline, firstError(result))
	}

	if len(result.Models) > 0 {
		formatModels(cmd.ErrOrStderr(), result.Models, time.Now())
	}
	slog.InfoContext(ctx, "pipeline completed successfully", "pipeline", pipeline, "duration_ms", result.DurationMs)
	return nil
}
