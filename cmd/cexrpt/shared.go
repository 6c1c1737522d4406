package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
	"github.com/benputley1/cex-reporter-sub000/internal/config"
	"github.com/benputley1/cex-reporter-sub000/internal/datacache"
	"github.com/benputley1/cex-reporter-sub000/internal/engine"
	"github.com/benputley1/cex-reporter-sub000/internal/ledger"
	"github.com/benputley1/cex-reporter-sub000/internal/observability"
	"github.com/benputley1/cex-reporter-sub000/internal/sandbox"
)

// SharedComponents holds the initialized subsystems the commands need.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config   *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Provider capability.Provider
	Ledger   *ledger.Store // nil when scripts read the demo fixture
	Obs      *observability.Observability

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
// Safe to call more than once; later calls are no-ops.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
	sc.cleanups = nil
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig resolves the config path (flag, then CEXRPT_CONFIG env) and
// loads it. A missing file at the conventional default location is not an
// error: the CLI falls back to built-in defaults and the demo fixture.
func loadConfig(flagPath string, logger *slog.Logger) (*config.Config, error) {
	path := goutils.Env("CEXRPT_CONFIG", flagPath)
	if path == config.DefaultConfigPath() {
		if _, err := os.Stat(path); err != nil {
			logger.Info("no config file found, using built-in defaults")
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// initShared builds the provider, engine, and observability stack.
// Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Data provider: configured ledger store, or the demo fixture.
	provider, err := initProvider(cfg, sc, logger)
	if err != nil {
		sc.Cleanup()
		return nil, err
	}
	if obs != nil && (obs.Metrics != nil || obs.Tracer != nil) {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.Tracer)
	}
	sc.Provider = provider

	// Engine.
	sc.Engine = engine.New(engine.Config{
		Sandbox: sandbox.Config{
			Budget:         cfg.Sandbox.Budget(),
			MaxSteps:       cfg.Sandbox.MaxSteps,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
			TeardownGrace:  cfg.Sandbox.TeardownGrace(),
		},
		Cache: datacache.Config{
			TTL:         cfg.Cache.TTL(),
			LoadTimeout: cfg.Cache.LoadTimeout(),
		},
		MaxScriptBytes: cfg.Engine.MaxScriptBytes,
		SweepSchedule:  cfg.Cache.SweepSchedule,
	}, provider, logger).WithObservability(obs)

	// Readiness checks.
	if obs != nil && obs.Health != nil {
		registerHealthChecks(cfg, sc)
	}

	return sc, nil
}

// initProvider opens the configured ledger backend. A nil ledger config
// selects the built-in deterministic fixture so the CLI works with no
// database at all.
func initProvider(cfg *config.Config, sc *SharedComponents, logger *slog.Logger) (capability.Provider, error) {
	if cfg.Ledger == nil {
		logger.Debug("no ledger configured, using demo fixture")
		return ledger.NewFixture(), nil
	}

	store, err := ledger.Open(ledgerConfig(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	sc.Ledger = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing ledger", slog.String("error", err.Error()))
		}
	})
	return store, nil
}

// ledgerConfig maps the file config onto the store config, filling the
// SQLite path from the data directory when unset.
func ledgerConfig(cfg *config.Config) ledger.Config {
	lc := ledger.Config{Driver: cfg.Ledger.LedgerDriver()}
	if sq := cfg.Ledger.SQLite; sq != nil {
		lc.Path = sq.Path
		lc.JournalMode = sq.JournalMode
	}
	if lc.Driver == ledger.DriverSQLite && lc.Path == "" {
		lc.Path = cfg.DatabasePath()
	}
	if pg := cfg.Ledger.Postgres; pg != nil {
		lc.DSN = pg.DSN
		lc.MaxOpenConns = pg.MaxOpenConns
		lc.MaxIdleConns = pg.MaxIdleConns
	}
	return lc
}

func registerHealthChecks(cfg *config.Config, sc *SharedComponents) {
	hc := cfg.Observability.Health
	if hc == nil {
		return
	}
	if hc.IncludeLedger && sc.Ledger != nil {
		sc.Obs.Health.AddCheck("ledger", func(ctx context.Context) error {
			return sc.Ledger.Ping(ctx)
		})
	}
	if hc.IncludeSandbox {
		sc.Obs.Health.AddCheck("sandbox", func(ctx context.Context) error {
			res := sc.Engine.Submit(ctx, engine.Submission{Code: "result = 1", BypassCache: true})
			if !res.Succeeded() {
				return fmt.Errorf("probe run ended %s: %s", res.Outcome, res.Detail)
			}
			return nil
		})
	}
}
