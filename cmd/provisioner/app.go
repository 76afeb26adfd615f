package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"

	"voice-assistant/provisioner/internal/api"
	"voice-assistant/provisioner/internal/clients"
	"voice-assistant/provisioner/internal/config"
	"voice-assistant/provisioner/internal/deps"
	"voice-assistant/provisioner/internal/orchestrator"
	"voice-assistant/provisioner/internal/readiness"
	"voice-assistant/provisioner/internal/telemetry"
	"voice-assistant/provisioner/internal/workspace"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	logCloser    io.Closer
	orchestrator *orchestrator.Orchestrator
	deps         *deps.Service
	router       *api.Router

	closeOnce sync.Once
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates the command runner and one circuit breaker per probe
//  3. Creates the Python, container and Ollama clients and the workspace
//  4. Creates the orchestrator, the dependency service and the HTTP router
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	app := &AppContext{cfg: cfg}

	// A collector that cannot be set up never blocks provisioning.
	tp, err := telemetry.Start(ctx, cfg.Telemetry, version)
	switch {
	case err != nil:
		slog.Warn("telemetry disabled", "err", err)
	case !tp.Enabled():
		slog.Debug("telemetry disabled, no OTLP endpoint configured")
	default:
		app.otelProvider = tp
	}

	// Child process output goes to stderr next to the logs; stdout carries
	// only command results.
	runner := &clients.ExecRunner{
		Dir:    cfg.Environment.Root,
		Stdout: os.Stderr,
		Stderr: os.Stderr,
	}

	python, err := clients.NewPythonClient(cfg.Environment, runner,
		clients.NewProbeBreaker(orchestrator.DepInterpreter),
		clients.NewProbeBreaker(orchestrator.DepVenv),
	)
	if err != nil {
		return nil, err
	}

	container, err := clients.NewContainerClient(cfg.Model, runner,
		clients.NewProbeBreaker(orchestrator.DepContainer))
	if err != nil {
		return nil, err
	}

	ollama := clients.NewOllamaClient(cfg.Model, clients.NewProbeBreaker(orchestrator.DepModelService))

	app.orchestrator = orchestrator.New(
		python,
		workspace.NewOS(cfg.Environment),
		container,
		ollama,
		readiness.New(cfg.Model.PollInterval, cfg.Model.ReadyTimeout),
		orchestrator.Options{Model: cfg.Model.Name, Warmup: cfg.Model.Warmup},
	)
	app.deps = deps.New(afero.NewOsFs(), python, cfg.Environment, cfg.Deps)
	app.router = api.NewRouter(app.orchestrator, cfg.Telemetry.ServiceName, slog.Default())

	return app, nil
}

// Close flushes telemetry and releases the log file. Safe to call twice.
func (a *AppContext) Close() {
	a.closeOnce.Do(func() {
		if a.otelProvider != nil {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.otelProvider.Shutdown(shutCtx); err != nil {
				slog.Warn("OTEL shutdown error", "err", err)
			}
		}
		if a.logCloser != nil {
			_ = a.logCloser.Close()
		}
	})
}
