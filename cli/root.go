package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/probe-lab/go-envelope/log"
	"github.com/probe-lab/go-envelope/tele"
)

const (
	flagCategoryLogging   = "Logging Configuration:"
	flagCategoryTelemetry = "Telemetry Configuration:"
)

type RootCommand struct {
	cmd *cli.Command
	cfg *RootCommandConfig
}

type RootCommandConfig struct {
	BuildInfo     *BuildInfo
	Log           *log.Config
	Metrics       *tele.MetricsConfig
	Trace         *tele.TraceConfig
	ShutdownGrace time.Duration
	EnvPrefix     string

	// EnvFiles are loaded into the process environment before the flags are
	// parsed. Missing files are skipped and variables that are already set
	// take precedence.
	EnvFiles []string

	metricsShutdown func(ctx context.Context) error
	tracesShutdown  func(ctx context.Context) error
}

// EnvVars returns the value sources for the given env var names, each
// qualified with the command's prefix.
func (cfg *RootCommandConfig) EnvVars(names ...string) cli.ValueSourceChain {
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = cfg.EnvPrefix + name
	}
	return cli.EnvVars(keys...)
}

func NewRootCommand(cmd *cli.Command) (*RootCommand, *RootCommandConfig) {
	cfg := &RootCommandConfig{
		BuildInfo:     buildInfo(),
		Log:           log.DefaultConfig(),
		Metrics:       tele.DefaultMetricsConfig(cmd.Name),
		Trace:         tele.DefaultTraceConfig(),
		ShutdownGrace: 30 * time.Second,
		EnvPrefix:     buildEnvPrefix(cmd.Name),
		EnvFiles:      []string{".env"},

		metricsShutdown: func(ctx context.Context) error { return nil },
		tracesShutdown:  func(ctx context.Context) error { return nil },
	}

	shortCommit := cfg.BuildInfo.ShortCommit()
	if cfg.BuildInfo.Dirty {
		shortCommit += "+dirty"
	}

	if cmd.Version == "" {
		cmd.Version = shortCommit
	} else {
		cmd.Version += "-" + shortCommit
	}

	cmd.Flags = append(cmd.Flags, []cli.Flag{
		&cli.StringFlag{
			Name:        "log.level",
			Sources:     cfg.EnvVars("LOG_LEVEL"),
			Usage:       "Sets an explicit logging level: debug, info, warn, error.",
			Destination: &cfg.Log.Level,
			Value:       cfg.Log.Level,
			Category:    flagCategoryLogging,
		},
		&cli.StringFlag{
			Name:        "log.format",
			Sources:     cfg.EnvVars("LOG_FORMAT"),
			Usage:       "Sets the format to output the log statements in: text, json",
			Destination: &cfg.Log.Format,
			Value:       cfg.Log.Format,
			Category:    flagCategoryLogging,
		},
		&cli.BoolFlag{
			Name:        "log.source",
			Sources:     cfg.EnvVars("LOG_SOURCE"),
			Usage:       "Compute the source code position of a log statement and add a SourceKey attribute to the output.",
			Destination: &cfg.Log.Source,
			Value:       cfg.Log.Source,
			Category:    flagCategoryLogging,
		},
		&cli.BoolFlag{
			Name:        "metrics.enabled",
			Sources:     cfg.EnvVars("METRICS_ENABLED"),
			Usage:       "Whether to expose metrics information",
			Destination: &cfg.Metrics.Enabled,
			Value:       cfg.Metrics.Enabled,
			Category:    flagCategoryTelemetry,
		},
		&cli.StringFlag{
			Name:        "metrics.host",
			Sources:     cfg.EnvVars("METRICS_HOST"),
			Usage:       "Which network interface should the metrics endpoint bind to",
			Value:       cfg.Metrics.Host,
			Destination: &cfg.Metrics.Host,
			Category:    flagCategoryTelemetry,
		},
		&cli.IntFlag{
			Name:        "metrics.port",
			Sources:     cfg.EnvVars("METRICS_PORT"),
			Usage:       "On which port should the metrics endpoint listen",
			Value:       cfg.Metrics.Port,
			Destination: &cfg.Metrics.Port,
			Category:    flagCategoryTelemetry,
		},
		&cli.StringFlag{
			Name:        "metrics.path",
			Sources:     cfg.EnvVars("METRICS_PATH"),
			Usage:       "On which path should the metrics endpoint listen",
			Value:       cfg.Metrics.Path,
			Destination: &cfg.Metrics.Path,
			Category:    flagCategoryTelemetry,
		},
		&cli.BoolFlag{
			Name:        "tracing.enabled",
			Sources:     cfg.EnvVars("TRACING_ENABLED"),
			Usage:       "Whether to emit trace data",
			Destination: &cfg.Trace.Enabled,
			Value:       cfg.Trace.Enabled,
			Category:    flagCategoryTelemetry,
		},
		&cli.FloatFlag{
			Name:        "tracing.sample-ratio",
			Sources:     cfg.EnvVars("TRACING_SAMPLE_RATIO"),
			Usage:       "Fraction of root spans that get sampled",
			Destination: &cfg.Trace.SampleRatio,
			Value:       cfg.Trace.SampleRatio,
			Category:    flagCategoryTelemetry,
		},
		&cli.DurationFlag{
			Name:        "shutdown.grace",
			Sources:     cfg.EnvVars("SHUTDOWN_GRACE"),
			Usage:       "How long to wait for the application to gracefully shutdown.",
			Value:       cfg.ShutdownGrace,
			Destination: &cfg.ShutdownGrace,
			Hidden:      true,
		},
	}...)

	rootCmd := &RootCommand{
		cmd: cmd,
		cfg: cfg,
	}

	oldBefore := rootCmd.cmd.Before
	rootCmd.cmd.Before = func(ctx context.Context, c *cli.Command) (context.Context, error) {
		if err := rootCmd.before(ctx, c); err != nil {
			return ctx, err
		}

		if oldBefore == nil {
			return ctx, nil
		}

		return oldBefore(ctx, c)
	}

	oldAfter := rootCmd.cmd.After
	rootCmd.cmd.After = func(ctx context.Context, c *cli.Command) error {
		if err := rootCmd.after(ctx, c); err != nil {
			return err
		}

		if oldAfter == nil {
			return nil
		}

		return oldAfter(ctx, c)
	}

	return rootCmd, cfg
}

func (r *RootCommand) before(ctx context.Context, c *cli.Command) error {
	// configure logger
	slogger, err := log.New(r.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	// use initialized logger for everything
	slog.SetDefault(slogger)

	slog.Debug("Starting " + r.cmd.Name + "...")

	// print all environment variables
	debugPrintEnvVars()

	// initialize metrics server - don't prohibit startup. The noop shutdown
	// functions stay in place if initialization fails.
	if shutdown, err := tele.ServeMetrics(r.cfg.Metrics); err != nil {
		slog.Warn("failed to start metrics server", "err", err)
	} else {
		r.cfg.metricsShutdown = shutdown
	}

	// initialize trace exporter - don't prohibit startup
	if shutdown, err := tele.InitTraceProvider(ctx, r.cmd.Name, r.cfg.Trace); err != nil {
		slog.Warn("failed to start exporting traces", "err", err)
	} else {
		r.cfg.tracesShutdown = shutdown
	}

	return nil
}

func (r *RootCommand) Run() error {
	return r.RunWithContextAndArgs(context.Background(), os.Args)
}

func (r *RootCommand) RunWithContext(ctx context.Context) error {
	return r.RunWithContextAndArgs(ctx, os.Args)
}

func (r *RootCommand) RunWithContextAndArgs(ctx context.Context, args []string) error {
	if err := loadEnvFiles(r.cfg.EnvFiles...); err != nil {
		return err
	}

	// the main application context
	ctx, cancel := signalContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return r.cmd.Run(ctx, args)
}

// loadEnvFiles loads the given dotenv files in order. Files that do not
// exist are skipped.
func loadEnvFiles(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func (r *RootCommand) after(ctx context.Context, c *cli.Command) error {
	defer slog.Debug("Stopped " + r.cmd.Name + " service.")

	// use a new context as the application context might have been canceled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), r.cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := r.cfg.metricsShutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown metrics server", "err", err)
	}

	if err := r.cfg.tracesShutdown(shutdownCtx); err != nil {
		slog.Warn("failed to shutdown traces exporter", "err", err)
	}

	return nil
}

// signalContext returns a context that gets canceled when the application
// receives a termination signal. We are not using [signal.NotifyContext]
// because when the context is canceled, we cannot differentiate between a
// regular shutdown and actually receiving a signal. This would make the log
// message below misleading.
func signalContext(ctx context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(ctx)

	signal.Notify(sigs, signals...)
	go func() {
		defer cancel()
		defer signal.Stop(sigs)

		select {
		case <-ctx.Done():
		case sig := <-sigs:
			slog.Info("Received termination signal - Stopping...", "signal", sig.String())
		}
	}()

	return ctx, cancel
}

// debugPrintEnvVars logs all environment variables at debug level.
// Redacts values of variables that look like credentials.
func debugPrintEnvVars() {
	slog.Debug("Environment variables:")
	for _, kv := range os.Environ() {
		slog.Debug(redactEnvVar(kv))
	}
}

var sensitiveEnvParts = []string{"password", "secret", "token", "key"}

func redactEnvVar(kv string) string {
	name, value, found := strings.Cut(kv, "=")
	if !found || value == "" {
		return kv
	}

	lower := strings.ToLower(name)
	for _, part := range sensitiveEnvParts {
		if strings.Contains(lower, part) {
			return name + "=*****"
		}
	}

	return kv
}

// buildEnvPrefix derives the env var prefix from the command name. Dashes
// are not valid in POSIX shell variable names, so they become underscores.
func buildEnvPrefix(name string) string {
	prefix := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

type BuildInfo struct {
	Commit string
	Dirty  bool
}

func (bi *BuildInfo) ShortCommit() string {
	shortCommit := bi.Commit
	if len(shortCommit) > 8 {
		shortCommit = shortCommit[:8]
	}
	return shortCommit
}

func buildInfo() *BuildInfo {
	bi := &BuildInfo{}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			bi.Commit = setting.Value
		case "vcs.modified":
			// an unparsable value leaves the build marked as clean
			bi.Dirty, _ = strconv.ParseBool(setting.Value)
		}
	}

	return bi
}
