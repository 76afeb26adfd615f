package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voice-assistant/provisioner/internal/orchestrator"
)

// orchestratorService is the subset of *orchestrator.Orchestrator used by the
// HTTP handlers. Declaring it as an interface allows test doubles to be injected.
type orchestratorService interface {
	Start(ctx context.Context, pipeline string) (<-chan *orchestrator.BootstrapResult, error)
	RunDeepHealth(ctx context.Context) map[string]orchestrator.ProbeResult
	Inventory(ctx context.Context) ([]orchestrator.ModelInfo, error)
	LastResult() *orchestrator.BootstrapResult
	IsReady() bool
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	orchestrator orchestratorService
	runs         *backgroundRuns
}

func newHandler(o orchestratorService) *Handler {
	return &Handler{orchestrator: o, runs: newBackgroundRuns()}
}

// Bootstrap handles POST /api/v1/bootstrap/:pipeline.
// It returns 202 immediately when a new run is started, 409 if one is already
// in progress and 404 for an unknown pipeline. The run continues after the
// response and is cancelled on shutdown; its outcome is served by LastResult.
func (h *Handler) Bootstrap(c *gin.Context) {
	pipeline := c.Param("pipeline")
	if !orchestrator.IsPipeline(pipeline) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown pipeline " + pipeline})
		return
	}

	if err := h.runs.start(h.orchestrator, pipeline); err != nil {
		if errors.Is(err, orchestrator.ErrBootstrapInProgress) {
			c.JSON(http.StatusConflict, gin.H{"status": orchestrator.StatusInProgress})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "pipeline": pipeline})
}

// LastResult handles GET /api/v1/bootstrap/last.
func (h *Handler) LastResult(c *gin.Context) {
	res := h.orchestrator.LastResult()
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "no bootstrap has run yet"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Models handles GET /api/v1/models.
// A failing model service is reported as 502 since this process is only a
// gateway to it.
func (h *Handler) Models(c *gin.Context) {
	models, err := h.orchestrator.Inventory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
		return
	}
	if models == nil {
		models = []orchestrator.ModelInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

// Health handles GET /health.
// It always returns 200; this is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes the interpreter, venv, container and model service and returns
// 200 only when every probe is OK.
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := h.orchestrator.RunDeepHealth(c.Request.Context())

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 only after a successful model pipeline; 503 otherwise.
func (h *Handler) Ready(c *gin.Context) {
	if h.orchestrator.IsReady() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}
