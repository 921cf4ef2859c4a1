package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/urfave/cli/v3"

	ecli "github.com/probe-lab/go-envelope/cli"
)

const flagCategoryHTTP = "HTTP Configuration:"

type serveConfig struct {
	Host     string
	Port     int
	APIKeys  []string
	APIUsers []string
}

func defaultServeConfig() *serveConfig {
	return &serveConfig{
		Host: "localhost",
		Port: 8080,
	}
}

func (cfg *serveConfig) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}

	if len(cfg.APIUsers) > len(cfg.APIKeys) {
		return fmt.Errorf("more api users (%d) than api keys (%d)", len(cfg.APIUsers), len(cfg.APIKeys))
	}

	return nil
}

func (cfg *serveConfig) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func newServeCommand(rootCfg *ecli.RootCommandConfig) *cli.Command {
	cfg := defaultServeConfig()

	return &cli.Command{
		Name:  "serve",
		Usage: "Starts the demo HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "http.host",
				Sources:     rootCfg.EnvVars("HTTP_HOST"),
				Usage:       "Which network interface the HTTP server should bind to",
				Value:       cfg.Host,
				Destination: &cfg.Host,
				Category:    flagCategoryHTTP,
			},
			&cli.IntFlag{
				Name:        "http.port",
				Sources:     rootCfg.EnvVars("HTTP_PORT"),
				Usage:       "On which port the HTTP server should listen",
				Value:       cfg.Port,
				Destination: &cfg.Port,
				Category:    flagCategoryHTTP,
			},
			&cli.StringSliceFlag{
				Name:        "http.api-keys",
				Sources:     rootCfg.EnvVars("HTTP_API_KEYS"),
				Usage:       "API keys that grant access to the /v1 routes. Leave empty to disable authentication.",
				Destination: &cfg.APIKeys,
				Category:    flagCategoryHTTP,
			},
			&cli.StringSliceFlag{
				Name:        "http.api-users",
				Sources:     rootCfg.EnvVars("HTTP_API_USERS"),
				Usage:       "Names of the owners of the API keys, in the same order.",
				Destination: &cfg.APIUsers,
				Category:    flagCategoryHTTP,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serveAction(ctx, cfg, rootCfg.ShutdownGrace)
		},
	}
}

func serveAction(ctx context.Context, cfg *serveConfig, grace time.Duration) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid serve config: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           newRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slogger := slog.With("addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		slogger.Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	slogger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return nil
}
