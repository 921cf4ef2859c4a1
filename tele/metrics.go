package tele

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"

	"github.com/probe-lab/ecs-exporter/ecscollector"
	"github.com/probe-lab/ecs-exporter/ecsmetadata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexp "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/probe-lab/go-envelope/envelope"
)

type MetricsConfig struct {
	Enabled bool
	Host    string
	Port    int
	Path    string
	Name    string
}

func DefaultMetricsConfig(name string) *MetricsConfig {
	return &MetricsConfig{
		Enabled: false,
		Host:    "localhost",
		Port:    6060,
		Path:    "/metrics",
		Name:    name,
	}
}

func (cfg *MetricsConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if !cfg.Enabled {
		return nil
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("metrics port %d out of range", cfg.Port)
	}

	if len(cfg.Path) == 0 || cfg.Path[0] != '/' {
		return fmt.Errorf("metrics path must start with a slash")
	}

	return nil
}

// ServeMetrics installs the global meter provider and, if enabled, exposes
// prometheus metrics and pprof endpoints. Every other path is answered with a
// 404 error envelope.
func ServeMetrics(cfg *MetricsConfig) (func(ctx context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	if !cfg.Enabled {
		otel.SetMeterProvider(noop.NewMeterProvider())
		return func(ctx context.Context) error { return nil }, nil
	}

	provider, providerShutdownFn, err := initMeterProvider(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("new meter provider: %w", err)
	}

	otel.SetMeterProvider(provider)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: metricsMux(cfg.Path),
	}

	slogger := slog.With("addr", addr)

	go func() {
		slogger.Info("Starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("Failed starting metrics server", "err", err)
		}
	}()

	shutdownFunc := func(ctx context.Context) error {
		slogger.Info("Shutting down metrics server")
		if err := srv.Shutdown(ctx); err != nil {
			slogger.Warn("Failed to shut down metrics server", "err", err)
		}

		return providerShutdownFn(ctx)
	}

	return shutdownFunc, nil
}

func metricsMux(path string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		envelope.ErrorWithCode("not found", http.StatusNotFound, http.StatusNotFound).ServeHTTP(rw, r)
	})

	return mux
}

func initMeterProvider(name string) (metric.MeterProvider, func(ctx context.Context) error, error) {
	// initialize AWS Elastic Container Service collector and register it with
	// the default prometheus registry. If we are not running in an ECS
	// environment, don't do anything.
	client, err := ecsmetadata.NewClientFromEnvironment()
	if err == nil {
		slog.Debug("Registering ECS collector")
		collector := ecscollector.NewCollector(client, slog.Default())
		if err := prometheus.DefaultRegisterer.Register(collector); err != nil {
			return nil, nil, fmt.Errorf("register collector: %w", err)
		}
	}

	exporter, err := promexp.New(promexp.WithNamespace(name))
	if err != nil {
		return nil, nil, fmt.Errorf("new prometheus exporter: %w", err)
	}

	res, err := newResource(name)
	if err != nil {
		return nil, nil, fmt.Errorf("new metrics resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter), // the exporter reads from the meter provider
		sdkmetric.WithResource(res),
	)

	shutdownFunc := func(ctx context.Context) error {
		slog.Debug("Shutting down prometheus exporter")
		if err := provider.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down meter provider", "err", err)
		}
		return nil
	}

	return provider, shutdownFunc, nil
}
