package orchestrator

import "time"

// Status values used across BootstrapResult and PhaseResult.
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusInProgress = "in-progress"
	StatusSkipped    = "skipped"
)

// Pipeline names.
const (
	PipelineEnvironment = "env"
	PipelineModel       = "model"
	PipelineAll         = "all"
)

// IsPipeline reports whether name is one of the pipeline names.
func IsPipeline(name string) bool {
	switch name {
	case PipelineEnvironment, PipelineModel, PipelineAll:
		return true
	}
	return false
}

// BootstrapResult is the aggregate result of one pipeline run. Phases are in
// execution order.
type BootstrapResult struct {
	Pipeline   string        `json:"pipeline"`
	Status     string        `json:"status"` // "ok", "error", "in-progress"
	Phases     []PhaseResult `json:"phases"`
	Models     []ModelInfo   `json:"models,omitempty"`
	DurationMs int64         `json:"durationMs"`
}

// Phase returns the named phase and whether it was recorded.
func (r *BootstrapResult) Phase(name string) (PhaseResult, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return PhaseResult{}, false
}

// PhaseResult represents the outcome of a single pipeline step.
type PhaseResult struct {
	Name       string `json:"name"`
	Status     string `json:"status"` // "ok", "error", "skipped"
	Detail     string `json:"detail,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ProbeResult is returned by RunDeepHealth for each dependency.
type ProbeResult struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// ModelInfo is one entry of the model service inventory.
type ModelInfo struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modifiedAt"`
}
