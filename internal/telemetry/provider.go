package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"voice-assistant/provisioner/internal/config"
)

const metricInterval = 10 * time.Second

// Provider owns the OTEL SDK started for one process. The zero value is a
// disabled provider: the global no-op tracer and meter stay installed.
type Provider struct {
	traces  *sdktrace.TracerProvider
	metrics *sdkmetric.MeterProvider
	conn    *grpc.ClientConn
}

// Start exports traces and metrics to the collector at cfg.OTLPEndpoint.
// With no endpoint it returns a disabled Provider. The gRPC dial does not
// block, so an unreachable collector never delays a provisioning run.
func Start(ctx context.Context, cfg config.TelemetryConfig, version string) (*Provider, error) {
	if cfg.OTLPEndpoint == "" {
		return &Provider{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
			semconv.ServiceNamespace("voice-assistant"),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("building OTEL resource: %w", err)
	}

	var dialOpts []grpc.DialOption
	if cfg.OTLPInsecure {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(cfg.OTLPEndpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing collector %s: %w", cfg.OTLPEndpoint, err)
	}
	p := &Provider{conn: conn}

	spans, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		p.Shutdown(ctx) //nolint:errcheck
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	p.traces = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
	)

	samples, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		p.Shutdown(ctx) //nolint:errcheck
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	p.metrics = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(samples, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(p.traces)
	otel.SetMeterProvider(p.metrics)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Debug("telemetry export failed", "err", err)
	}))

	return p, nil
}

// Enabled reports whether telemetry is being exported.
func (p *Provider) Enabled() bool {
	return p.conn != nil
}

// Shutdown flushes pending spans and metrics and closes the collector
// connection. Flush failures are logged, not returned: the run they describe
// has already finished. ctx should carry a deadline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.metrics != nil {
		if err := p.metrics.Shutdown(ctx); err != nil {
			slog.Debug("flushing metrics", "err", err)
		}
	}
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			slog.Debug("flushing traces", "err", err)
		}
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
