// Package app assembles the probe components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snow-ghost/probe/config"
	"github.com/snow-ghost/probe/core"
	"github.com/snow-ghost/probe/discovery"
	"github.com/snow-ghost/probe/generate"
	"github.com/snow-ghost/probe/inference"
	"github.com/snow-ghost/probe/inference/mock"
	"github.com/snow-ghost/probe/interp/goexec"
	"github.com/snow-ghost/probe/interp/wasm"
	"github.com/snow-ghost/probe/pkg/logging"
	"github.com/snow-ghost/probe/pkg/metrics"
	"github.com/snow-ghost/probe/pkg/tokens"
	"github.com/snow-ghost/probe/pkg/tracing"
	"github.com/snow-ghost/probe/server"
	"github.com/snow-ghost/probe/session"
	"github.com/snow-ghost/probe/testkit"
)

// MockModel selects the canned in-process inference client.
const MockModel = "mock"

// App holds the long-lived components shared by every session.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *metrics.PrometheusMetrics
	Tracer  *tracing.Tracer

	discovery *discovery.Engine
	generator *generate.Engine
	runner    *testkit.Runner
}

// New builds the application. Logs go to stderr so command output stays clean.
func New(cfg *config.Config) (*App, error) {
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tracer, err := tracing.NewTracer(tracing.Config{
		ServiceName:    "probe",
		ServiceVersion: "0.1.0",
		JaegerEndpoint: cfg.JaegerEndpoint,
		Environment:    "local",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	m := metrics.NewPrometheusMetrics()
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Tracer:  tracer,
		discovery: discovery.NewEngine(
			[]core.Provider{goexec.NewFrontend(logger), wasm.NewFrontend(logger)},
			discovery.WithLogger(logger),
			discovery.WithMetrics(m),
			discovery.WithTracer(tracer),
		),
		runner: testkit.NewRunner(logger, m),
	}

	opts := []generate.Option{
		generate.WithSeed(cfg.Seed),
		generate.WithLogger(logger),
		generate.WithMetrics(m),
	}
	if client := a.inferer(); client != nil {
		opts = append(opts, generate.WithInferer(client, cfg.Inference.Timeout))
	}
	a.generator = generate.NewEngine(opts...)

	logger.Info("Probe configured",
		"source_root", cfg.SourceRoot,
		"strategy", a.generator.Strategy(),
		"seed", cfg.Seed,
	)
	return a, nil
}

func (a *App) inferer() inference.Client {
	ic := a.Config.Inference
	if ic.Model == MockModel {
		return mock.NewClient()
	}
	if !ic.Enabled() {
		return nil
	}
	return inference.NewOpenAIClient(inference.OpenAIConfig{
		APIKey:  ic.APIKey,
		BaseURL: ic.Endpoint,
		Model:   ic.Model,
		RPS:     ic.RPS,
		Burst:   ic.Burst,
	}, tokens.NewEncoderRegistry(), a.Logger, a.Metrics, a.Tracer)
}

func (a *App) Generator() *generate.Engine { return a.generator }

func (a *App) Runner() *testkit.Runner { return a.runner }

// Discover runs one discovery pass over root.
func (a *App) Discover(ctx context.Context, root string) (*core.Catalog, error) {
	return a.discovery.Discover(ctx, root)
}

// OpenSession discovers the configured root and wraps the catalog in a new session.
func (a *App) OpenSession(ctx context.Context) (*session.Session, error) {
	cat, err := a.Discover(ctx, a.Config.SourceRoot)
	if err != nil {
		return nil, err
	}
	return session.New(uuid.NewString(), cat, a.generator, session.Options{
		ExecTimeout: a.Config.ExecTimeout,
		Logger:      a.Logger,
		Metrics:     a.Metrics,
		Tracer:      a.Tracer,
	}), nil
}

// NewManager returns a session manager sized by the configuration.
func (a *App) NewManager() (*session.Manager, error) {
	return session.NewManager(&session.ManagerConfig{
		MaxSessions:     a.Config.Sessions.MaxSessions,
		IdleTTL:         a.Config.Sessions.IdleTTL,
		CleanupInterval: cleanupInterval(a.Config.Sessions.IdleTTL),
	}, a.Logger, a.Metrics)
}

// NewServer wires the HTTP front end to mgr.
func (a *App) NewServer(mgr *session.Manager) *server.Server {
	return server.NewServer(server.Options{
		Sessions:  mgr,
		Open:      a.OpenSession,
		Runner:    a.runner,
		BatchSize: a.Config.BatchSize,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	})
}

// Close flushes traces and logs.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Tracer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if d := ttl / 4; d < time.Minute {
		return d
	}
	return time.Minute
}
