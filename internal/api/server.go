package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wraps a configured Gin engine and exposes it as an http.Handler.
type Router struct {
	engine  *gin.Engine
	handler *Handler
}

// NewRouter constructs a Router with the full middleware chain and all routes
// registered. Middleware order:
//  1. Recovery: panic → 500
//  2. Tracing: trace context per request
//  3. RequestLogger: structured request/response logging
func NewRouter(o orchestratorService, serviceName string, logger *slog.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(Recovery(logger))
	engine.Use(Tracing(serviceName))
	engine.Use(RequestLogger(logger))

	h := newHandler(o)

	v1 := engine.Group("/api/v1")
	v1.GET("/models", h.Models)
	v1.GET("/bootstrap/last", h.LastResult)
	v1.POST("/bootstrap/:pipeline", h.Bootstrap)

	engine.GET("/health", h.Health)
	engine.GET("/health/deep", h.DeepHealth)
	engine.GET("/ready", h.Ready)

	return &Router{engine: engine, handler: h}
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}

// Shutdown cancels pipelines started over HTTP and waits for them to return.
// Call it after the HTTP server has stopped accepting requests.
func (r *Router) Shutdown(ctx context.Context) error {
	return r.handler.runs.stop(ctx)
}
