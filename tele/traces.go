package tele

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type TraceConfig struct {
	Enabled bool

	// SampleRatio is the fraction of root spans that get sampled.
	SampleRatio float64
}

func DefaultTraceConfig() *TraceConfig {
	return &TraceConfig{
		Enabled:     false,
		SampleRatio: 1,
	}
}

func (cfg *TraceConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return fmt.Errorf("sample ratio must be within [0, 1], got %f", cfg.SampleRatio)
	}

	return nil
}

func InitTraceProvider(ctx context.Context, name string, cfg *TraceConfig) (func(ctx context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trace config: %w", err)
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(ctx context.Context) error { return nil }, nil
	}

	res, err := newResource(name)
	if err != nil {
		return nil, fmt.Errorf("failed to create otel trace provider resource: %w", err)
	}

	// endpoint and headers come from the OTEL_EXPORTER_OTLP_* environment
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)),
	)

	otel.SetTracerProvider(provider)

	shutdownFunc := func(ctx context.Context) error {
		slog.Debug("Shutting down traces provider")
		return provider.Shutdown(ctx)
	}

	return shutdownFunc, nil
}
