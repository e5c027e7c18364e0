// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/fairyhunter13/interview-prep/internal/config"
)

// SetupTracing installs a global tracer provider exporting over OTLP/gRPC.
// It returns a nil shutdown func when no endpoint is configured.
func SetupTracing(cfg config.Config) (func(context.Context) error, error) {
	if cfg.OTLPEndpoint == "" {
		slog.Info("OTLP endpoint not set; tracing disabled")
		return nil, nil
	}
	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=tracing.exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.OTELServiceName),
		semconv.DeploymentEnvironmentKey.String(cfg.AppEnv),
	))
	if err != nil {
		return nil, fmt.Errorf("op=tracing.resource: %w", err)
	}

	ratio := samplingRatio(cfg)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	otel.SetTracerProvider(tp)
	slog.Info("tracing configured",
		slog.String("endpoint", cfg.OTLPEndpoint),
		slog.String("service", cfg.OTELServiceName),
		slog.Float64("sampling_ratio", ratio))
	return tp.Shutdown, nil
}

// samplingRatio honours an explicit ratio, else samples 10% in prod and
// everything elsewhere.
func samplingRatio(cfg config.Config) float64 {
	if cfg.OTELSampleRatio > 0 && cfg.OTELSampleRatio <= 1 {
		return cfg.OTELSampleRatio
	}
	if cfg.IsProd() {
		return 0.1
	}
	return 1.0
}
