package api

import (
	"context"
	"log/slog"
	"sync"

	"voice-assistant/provisioner/internal/orchestrator"
)

// backgroundRuns owns the pipelines started over HTTP. They outlive the
// request that started them and are cancelled when the server shuts down.
type backgroundRuns struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newBackgroundRuns() *backgroundRuns {
	ctx, cancel := context.WithCancel(context.Background())
	return &backgroundRuns{ctx: ctx, cancel: cancel}
}

// start claims the pipeline guard synchronously, so a refused run is
// reported to the caller, and waits for the run in the background.
func (b *backgroundRuns) start(o orchestratorService, pipeline string) error {
	done, err := o.Start(b.ctx, pipeline)
	if err != nil {
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if result := <-done; result != nil && result.Status == orchestrator.StatusError {
			slog.Warn("background pipeline completed with errors", "pipeline", pipeline)
		}
	}()
	return nil
}

// stop cancels every running pipeline and waits until they return or ctx
// expires.
func (b *backgroundRuns) stop(ctx context.Context) error {
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
