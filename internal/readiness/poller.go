// Package readiness waits for a service to start answering its health check.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
)

// ErrNotReady is returned when the readiness budget runs out before a check
// succeeds.
var ErrNotReady = errors.New("service did not become ready")

// Poller retries a check at a fixed interval until it succeeds.
//
// A zero Timeout waits forever; only context cancellation ends the wait.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	Clock    clock.Clock
}

// New returns a Poller on the wall clock.
func New(interval, timeout time.Duration) *Poller {
	return &Poller{Interval: interval, Timeout: timeout, Clock: clock.WallClock}
}

// Wait calls check until it returns nil. It returns ErrNotReady (wrapping the
// last check error) when Timeout elapses, and ctx.Err() when ctx is done.
func (p *Poller) Wait(ctx context.Context, check func(context.Context) error) error {
	clk := p.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	args := retry.CallArgs{
		Func: func() error {
			return check(ctx)
		},
		NotifyFunc: func(err error, attempt int) {
			slog.DebugContext(ctx, "service not ready yet", "attempt", attempt, "err", err)
		},
		Attempts: -1, // unlimited; bounded by MaxDuration or Stop
		Delay:    p.Interval,
		Clock:    clk,
		Stop:     ctx.Done(),
	}
	if p.Timeout > 0 {
		args.MaxDuration = p.Timeout
	}

	err := retry.Call(args)
	switch {
	case err == nil:
		return nil
	case retry.IsRetryStopped(err):
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("waiting for readiness: %w", ctxErr)
		}
		return fmt.Errorf("waiting for readiness: %w", err)
	case retry.IsDurationExceeded(err):
		return fmt.Errorf("%w within %s: %v", ErrNotReady, p.Timeout, retry.LastError(err))
	default:
		return fmt.Errorf("waiting for readiness: %w", err)
	}
}
