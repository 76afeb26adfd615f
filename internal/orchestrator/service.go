package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"voice-assistant/provisioner/internal/telemetry"
)

// PythonEnv is satisfied by *clients.PythonClient.
type PythonEnv interface {
	CheckInterpreter(ctx context.Context) (string, error)
	CreateVenv(ctx context.Context) error
	UpgradeInstaller(ctx context.Context) error
	InstallRequirements(ctx context.Context) error
	Probe(ctx context.Context) ProbeResult
	ProbeVenv(ctx context.Context) ProbeResult
}

// Workspace is satisfied by *workspace.Workspace.
type Workspace interface {
	EnsureLogDir() (created bool, err error)
	MaterializeConfig() (copied bool, err error)
}

// ContainerRuntime is satisfied by *clients.ContainerClient.
type ContainerRuntime interface {
	CheckModel(model string) error
	Start(ctx context.Context) error
	Pull(ctx context.Context, model string) error
	Probe(ctx context.Context) ProbeResult
}

// ModelServer is satisfied by *clients.OllamaClient.
type ModelServer interface {
	Ping(ctx context.Context) error
	Models(ctx context.Context) ([]ModelInfo, error)
	Warmup(ctx context.Context, model string) error
	Probe(ctx context.Context) ProbeResult
}

// ReadinessWaiter is satisfied by *readiness.Poller.
type ReadinessWaiter interface {
	Wait(ctx context.Context, check func(context.Context) error) error
}

// Options carries the model pipeline settings.
type Options struct {
	Model  string
	Warmup bool
}

// Orchestrator runs the provisioning pipelines and health probes.
type Orchestrator struct {
	python    PythonEnv
	workspace Workspace
	runtime   ContainerRuntime
	models    ModelServer
	waiter    ReadinessWaiter
	opts      Options

	phaseCounter metric.Int64Counter

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	modelReady          bool
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator. The concrete client types satisfy the
// interfaces defined in this package.
func New(py PythonEnv, ws Workspace, rt ContainerRuntime, ms ModelServer, waiter ReadinessWaiter, opts Options) *Orchestrator {
	counter, err := otel.Meter("voice-provisioner").Int64Counter(
		"provisioner.phase.total",
		metric.WithDescription("Provisioning phases by outcome"),
	)
	if err != nil {
		slog.Warn("phase counter unavailable", "err", err)
	}

	return &Orchestrator{
		python:       py,
		workspace:    ws,
		runtime:      rt,
		models:       ms,
		waiter:       waiter,
		opts:         opts,
		phaseCounter: counter,
	}
}

// step is one unit of a fail-stop pipeline. The returned detail is recorded on
// the phase when the step succeeds.
type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// RunEnvironment prepares the Python environment: interpreter check, venv,
// installer upgrade, requirements, log directory, config file.
func (o *Orchestrator) RunEnvironment(ctx context.Context) (*BootstrapResult, error) {
	return o.Run(ctx, PipelineEnvironment)
}

// RunModel starts the model service, waits for it, pulls the configured
// model and records the resulting inventory.
func (o *Orchestrator) RunModel(ctx context.Context) (*BootstrapResult, error) {
	return o.Run(ctx, PipelineModel)
}

// RunAll runs the environment pipeline followed by the model pipeline as one
// fail-stop sequence.
func (o *Orchestrator) RunAll(ctx context.Context) (*BootstrapResult, error) {
	return o.Run(ctx, PipelineAll)
}

// Run runs the named pipeline to completion.
func (o *Orchestrator) Run(ctx context.Context, pipeline string) (*BootstrapResult, error) {
	build, err := o.acquire(pipeline)
	if err != nil {
		return nil, err
	}
	defer o.bootstrapInProgress.Store(false)
	return o.execute(ctx, pipeline, build), nil
}

// Start claims the in-progress guard and runs the pipeline in the
// background. It fails immediately with ErrBootstrapInProgress or
// ErrUnknownPipeline; otherwise the result is delivered on the returned
// channel once the run ends.
func (o *Orchestrator) Start(ctx context.Context, pipeline string) (<-chan *BootstrapResult, error) {
	build, err := o.acquire(pipeline)
	if err != nil {
		return nil, err
	}

	done := make(chan *BootstrapResult, 1)
	go func() {
		result := o.execute(ctx, pipeline, build)
		o.bootstrapInProgress.Store(false)
		done <- result
		close(done)
	}()
	return done, nil
}

// acquire resolves pipeline to its steps and claims the in-progress guard.
func (o *Orchestrator) acquire(pipeline string) (func(*BootstrapResult) []step, error) {
	var build func(*BootstrapResult) []step
	switch pipeline {
	case PipelineEnvironment:
		build = func(*BootstrapResult) []step { return o.environmentSteps() }
	case PipelineModel:
		build = o.modelSteps
	case PipelineAll:
		build = func(r *BootstrapResult) []step {
			return append(o.environmentSteps(), o.modelSteps(r)...)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownPipeline, pipeline)
	}

	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	return build, nil
}

func (o *Orchestrator) environmentSteps() []step {
	return []step{
		{PhaseInterpreter, func(ctx context.Context) (string, error) {
			return o.python.CheckInterpreter(ctx)
		}},
		{PhaseVenv, func(ctx context.Context) (string, error) {
			return "", o.python.CreateVenv(ctx)
		}},
		{PhaseInstaller, func(ctx context.Context) (string, error) {
			return "", o.python.UpgradeInstaller(ctx)
		}},
		{PhaseRequirements, func(ctx context.Context) (string, error) {
			return "", o.python.InstallRequirements(ctx)
		}},
		{PhaseLogDir, func(context.Context) (string, error) {
			created, err := o.workspace.EnsureLogDir()
			if err != nil {
				return "", err
			}
			if created {
				return "created", nil
			}
			return "already present", nil
		}},
		{PhaseConfig, func(context.Context) (string, error) {
			copied, err := o.workspace.MaterializeConfig()
			if err != nil {
				return "", err
			}
			if copied {
				return "copied from template", nil
			}
			return "kept existing", nil
		}},
	}
}

func (o *Orchestrator) modelSteps(result *BootstrapResult) []step {
	steps := []step{
		{PhaseService, func(ctx context.Context) (string, error) {
			if err := o.runtime.CheckModel(o.opts.Model); err != nil {
				return "", err
			}
			return "", o.runtime.Start(ctx)
		}},
		{PhaseReadiness, func(ctx context.Context) (string, error) {
			start := time.Now()
			if err := o.waiter.Wait(ctx, o.models.Ping); err != nil {
				return "", err
			}
			return fmt.Sprintf("ready after %s", time.Since(start).Round(time.Millisecond)), nil
		}},
		{PhasePull, func(ctx context.Context) (string, error) {
			return o.opts.Model, o.runtime.Pull(ctx, o.opts.Model)
		}},
		{PhaseInventory, func(ctx context.Context) (string, error) {
			models, err := o.models.Models(ctx)
			if err != nil {
				return "", err
			}
			result.Models = models
			return fmt.Sprintf("%d models", len(models)), nil
		}},
	}
	if o.opts.Warmup {
		steps = append(steps, step{PhaseWarmup, func(ctx context.Context) (string, error) {
			return o.opts.Model, o.models.Warmup(ctx, o.opts.Model)
		}})
	}
	return steps
}

// execute runs one pipeline under an already claimed guard and owns the run
// span and result bookkeeping. build receives the result so steps can attach
// data to it.
func (o *Orchestrator) execute(ctx context.Context, pipeline string, build func(*BootstrapResult) []step) *BootstrapResult {
	result := &BootstrapResult{
		Pipeline: pipeline,
		Status:   StatusInProgress,
	}
	started := time.Now()

	ctx, span := otel.Tracer("voice-provisioner").Start(ctx, "provisioner."+pipeline)
	defer span.End()
	ctx = telemetry.WithLogAttrs(ctx, "pipeline", pipeline)

	slog.InfoContext(ctx, "pipeline started")

	failed := false
	for _, s := range build(result) {
		stepCtx := telemetry.WithLogAttrs(ctx, "phase", s.name)
		if failed {
			phase := PhaseResult{Name: s.name, Status: StatusSkipped}
			o.recordPhase(stepCtx, pipeline, phase)
			result.Phases = append(result.Phases, phase)
			continue
		}

		stepStart := time.Now()
		detail, err := s.run(stepCtx)
		phase := toPhase(s.name, detail, err)
		phase.DurationMs = time.Since(stepStart).Milliseconds()

		o.recordPhase(stepCtx, pipeline, phase)
		result.Phases = append(result.Phases, phase)
		if err != nil {
			failed = true
		}
	}

	result.Status = StatusOK
	if failed {
		result.Status = StatusError
	}
	result.DurationMs = time.Since(started).Milliseconds()

	span.SetAttributes(
		attribute.String("provisioner.pipeline", pipeline),
		attribute.String("provisioner.status", result.Status),
	)
	if failed {
		span.SetStatus(codes.Error, "pipeline step failed")
		slog.WarnContext(ctx, "pipeline completed with errors", "status", result.Status)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "pipeline completed", "status", result.Status)
	}

	o.resultMu.Lock()
	o.lastResult = result
	if pipeline == PipelineModel || pipeline == PipelineAll {
		o.modelReady = result.Status == StatusOK
	}
	o.resultMu.Unlock()

	return result
}

// RunDeepHealth probes the interpreter, venv, container and model service
// concurrently and returns a map of dependency name to ProbeResult.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	probes := map[string]func(context.Context) ProbeResult{
		DepInterpreter:  o.python.Probe,
		DepVenv:         o.python.ProbeVenv,
		DepContainer:    o.runtime.Probe,
		DepModelService: o.models.Probe,
	}

	results := make(map[string]ProbeResult, len(probes))
	var mu sync.Mutex
	var g errgroup.Group

	for name, probe := range probes {
		g.Go(func() error {
			res := probe(ctx)
			mu.Lock()
			results[name] = res
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Inventory lists the models currently held by the model service.
func (o *Orchestrator) Inventory(ctx context.Context) ([]ModelInfo, error) {
	return o.models.Models(ctx)
}

// IsBootstrapInProgress returns true while a pipeline run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last run that included the model pipeline
// completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.modelReady
}

// LastResult returns the most recent pipeline result, or nil before the first
// run.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// recordPhase emits a log and a counter sample for a phase. ctx carries the
// pipeline and phase log attributes.
func (o *Orchestrator) recordPhase(ctx context.Context, pipeline string, p PhaseResult) {
	if o.phaseCounter != nil {
		o.phaseCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("phase", p.Name),
			attribute.String("status", p.Status),
		))
	}

	switch p.Status {
	case StatusOK:
		slog.InfoContext(ctx, "phase ok", "detail", p.Detail, "duration_ms", p.DurationMs)
	case StatusSkipped:
		slog.DebugContext(ctx, "phase skipped")
	default:
		slog.WarnContext(ctx, "phase failed", "error", p.Error)
	}
}

// toPhase converts a step outcome to a PhaseResult.
func toPhase(name, detail string, err error) PhaseResult {
	if err == nil {
		return PhaseResult{Name: name, Status: StatusOK, Detail: detail}
	}
	return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
}
