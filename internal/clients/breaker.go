package clients

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"voice-assistant/provisioner/internal/orchestrator"
)

const (
	// probeTripAfter consecutive failed probes open the breaker.
	probeTripAfter = 3
	// probeOpenFor is how long an open breaker answers without probing.
	probeOpenFor = 30 * time.Second
)

// NewProbeBreaker returns the breaker that guards the deep-health probe of
// dep. A probe aborted by its caller's context does not count as a failure.
func NewProbeBreaker(dep string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        dep,
		MaxRequests: 1,
		Timeout:     probeOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= probeTripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("probe breaker changed state", "dependency", name, "from", from.String(), "to", to.String())
		},
	})
}

// guardedProbe runs check inside cb and converts the outcome to a
// ProbeResult labelled target. An open breaker reports "circuit open"
// without running check.
func guardedProbe(ctx context.Context, cb *gobreaker.CircuitBreaker, target string, check func() error) orchestrator.ProbeResult {
	res := orchestrator.ProbeResult{Name: target}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	_, err := cb.Execute(func() (any, error) {
		return nil, check()
	})
	res.LatencyMs = time.Since(start).Milliseconds()

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		res.Error = "circuit open"
	case err != nil:
		res.Error = err.Error()
	default:
		res.OK = true
	}
	return res
}
