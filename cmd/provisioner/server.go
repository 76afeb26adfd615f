package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the provisioner HTTP API server",
	Long: `Start the provisioner HTTP server on the configured port (default :8081).

The server exposes health and readiness probes, the model inventory, and
endpoints that start a pipeline in the background. On SIGTERM or SIGINT it
stops accepting requests, then cancels a running pipeline and waits for it
to return within server.shutdown_timeout.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      app.router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("provisioner server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if app.orchestrator.IsBootstrapInProgress() {
		slog.Warn("cancelling pipeline started over HTTP")
	}
	if err := app.router.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("waiting for pipeline to stop: %w", err)
	}

	slog.Info("server stopped cleanly")
	return nil
}
