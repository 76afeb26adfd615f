// Package orchestrator sequences the provisioning pipelines.
//
// Both pipelines are fail-stop: steps run in a fixed order, the first failure
// is recorded on its phase, and every later phase is reported as skipped.
// Results are returned as data; only a concurrent run is an error.
package orchestrator

import "errors"

var (
	// ErrBootstrapInProgress is returned when a pipeline is started while
	// another one is still running.
	ErrBootstrapInProgress = errors.New("bootstrap already in progress")
	// ErrUnknownPipeline is returned by Run for a name that is not a pipeline.
	ErrUnknownPipeline = errors.New("unknown pipeline")
)

// Phase names, in pipeline order.
const (
	PhaseInterpreter  = "interpreter"
	PhaseVenv         = "venv"
	PhaseInstaller    = "installer"
	PhaseRequirements = "requirements"
	PhaseLogDir       = "log-dir"
	PhaseConfig       = "config"

	PhaseService   = "service"
	PhaseReadiness = "readiness"
	PhasePull      = "pull"
	PhaseInventory = "inventory"
	PhaseWarmup    = "warmup"
)

// Dependency names reported by RunDeepHealth.
const (
	DepInterpreter  = "interpreter"
	DepVenv         = "venv"
	DepContainer    = "container"
	DepModelService = "model-service"
)
