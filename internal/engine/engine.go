// Package engine ties the validator, the data cache, and the sandboxed
// runtime into the single entry point the hosting assistant calls. Submit
// never returns an error: every way a script can end — including ways that
// would panic a naive embedding — comes back as an ExecutionResult.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
	"github.com/benputley1/cex-reporter-sub000/internal/datacache"
	"github.com/benputley1/cex-reporter-sub000/internal/observability"
	"github.com/benputley1/cex-reporter-sub000/internal/sandbox"
	"github.com/benputley1/cex-reporter-sub000/internal/scriptlib"
	"github.com/benputley1/cex-reporter-sub000/internal/validator"
)

// Config assembles the engine's runtime parameters.
type Config struct {
	// Sandbox configures the runtime and isolation controller.
	Sandbox sandbox.Config

	// Cache configures the dataset cache.
	Cache datacache.Config

	// MaxScriptBytes caps submitted script size. Zero = validator default.
	MaxScriptBytes int

	// SweepSchedule is a cron spec for the cache janitor. Empty = no sweeps.
	SweepSchedule string
}

// Engine validates, caches for, and executes analysis scripts.
// Safe for arbitrary concurrent Submit calls; runs share only the cache.
type Engine struct {
	validator     *validator.Validator
	isolator      *sandbox.Isolator
	cache         *datacache.Cache
	provider      capability.Provider
	obs           *observability.Observability
	logger        *slog.Logger
	sweepSchedule string
}

// New creates an Engine over the given data provider.
func New(cfg Config, provider capability.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	runtime := sandbox.NewRuntime(cfg.Sandbox, logger)
	return &Engine{
		validator: validator.New(validator.Config{
			MaxScriptBytes: cfg.MaxScriptBytes,
			Capabilities:   capability.Names(),
			Modules:        scriptlib.ModuleNames(),
		}),
		isolator:      sandbox.NewIsolator(runtime, cfg.Sandbox, logger),
		cache:         datacache.New(cfg.Cache, logger),
		provider:      provider,
		logger:        logger,
		sweepSchedule: cfg.SweepSchedule,
	}
}

// WithObservability enables metrics and tracing on the engine.
func (e *Engine) WithObservability(obs *observability.Observability) *Engine {
	e.obs = obs
	if obs != nil && obs.Metrics != nil {
		e.cache.WithMetrics(datacache.NewMetrics(obs.Metrics.Registry))
	}
	return e
}

// Cache exposes the dataset cache, for janitor wiring and stats surfaces.
func (e *Engine) Cache() *datacache.Cache { return e.cache }

// Start launches background maintenance — currently the cache sweep
// janitor when a schedule is configured. The returned function stops it.
// Engines without a sweep schedule get a no-op stop.
func (e *Engine) Start(ctx context.Context) (func(), error) {
	if e.sweepSchedule == "" {
		return func() {}, nil
	}
	janitor, err := datacache.NewJanitor(e.cache, e.sweepSchedule, e.logger)
	if err != nil {
		return nil, err
	}
	return janitor.Start(ctx), nil
}

// MetricsRegistry returns the engine's Prometheus registry for the host's
// scrape surface, or nil when metrics are disabled.
func (e *Engine) MetricsRegistry() *prometheus.Registry {
	if e.obs == nil || e.obs.Metrics == nil {
		return nil
	}
	return e.obs.Metrics.Registry
}

// Validate runs the static gate alone — the pre-flight check surfaces use.
func (e *Engine) Validate(code string) validator.Verdict {
	return e.validator.Check(code)
}

// ClearCache drops every cached dataset.
func (e *Engine) ClearCache() { e.cache.Clear() }

// CacheStats reports the cache state.
func (e *Engine) CacheStats() datacache.Stats { return e.cache.Stats() }

// Submit validates and executes one script. It always returns a complete
// ExecutionResult and never panics or errors across this boundary.
func (e *Engine) Submit(ctx context.Context, sub Submission) ExecutionResult {
	id := sub.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	start := time.Now()

	var span trace.Span
	if e.obs != nil && e.obs.Tracer != nil {
		ctx, span = e.obs.Tracer.Tracer().Start(ctx, "engine.submit",
			trace.WithAttributes(
				attribute.String("submission_id", id.String()),
			))
		defer span.End()
	}

	// 1. Static validation. A rejected script builds no scope, runs no
	// code, and touches no data.
	if verdict := e.validator.Check(sub.Code); !verdict.OK {
		result := ExecutionResult{
			ID:      id,
			Outcome: OutcomeValidationFailed,
			Elapsed: time.Since(start),
			Detail:  verdict.Reason(),
			Class:   verdict.Class,
		}
		e.logger.InfoContext(ctx, "submission rejected",
			slog.String("submission_id", id.String()),
			slog.String("class", string(verdict.Class)),
			slog.String("construct", verdict.Construct),
		)
		e.record(span, result)
		return result
	}

	// 2. Isolated execution against this run's loader.
	inv := sandbox.Invocation{
		Label:  id.String(),
		Code:   sub.Code,
		Loader: e.loader(sub.BypassCache),
	}
	if e.obs != nil && e.obs.Metrics != nil {
		e.obs.Metrics.ActiveRuns.Inc()
		defer e.obs.Metrics.ActiveRuns.Dec()
	}
	runResult, runErr := e.isolator.Run(ctx, inv)

	// 3. Normalize into the uniform result shape.
	result := e.normalize(id, runResult, runErr)
	e.logger.InfoContext(ctx, "submission finished",
		slog.String("submission_id", id.String()),
		slog.String("outcome", string(result.Outcome)),
		slog.Duration("elapsed", result.Elapsed),
	)
	e.record(span, result)
	return result
}

// loader returns the dataset loader for one run, routed through the cache
// unless the submission opted out.
func (e *Engine) loader(bypass bool) capability.Loader {
	return func(ctx context.Context, call capability.Call) (*capability.Dataset, error) {
		start := time.Now()
		ds, err := e.loadDataset(ctx, bypass, call)
		if e.obs != nil && e.obs.Metrics != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			e.obs.Metrics.CapabilityCallsTotal.WithLabelValues(call.Name, status).Inc()
			e.obs.Metrics.CapabilityLoadDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
		}
		return ds, err
	}
}

func (e *Engine) loadDataset(ctx context.Context, bypass bool, call capability.Call) (*capability.Dataset, error) {
	if bypass {
		return capability.Dispatch(ctx, e.provider, call)
	}
	return e.cache.GetOrLoad(ctx, call.Key(), func(loadCtx context.Context) (*capability.Dataset, error) {
		return capability.Dispatch(loadCtx, e.provider, call)
	})
}

// normalize maps a raw run outcome onto the uniform result shape, applying
// the per-outcome output policy.
func (e *Engine) normalize(id uuid.UUID, res *sandbox.RunResult, err error) ExecutionResult {
	result := ExecutionResult{ID: id, Elapsed: res.Elapsed}
	switch {
	case err == nil:
		result.Outcome = OutcomeSucceeded
		result.Value = res.Value
		result.Output = res.Output

	case errors.Is(err, sandbox.ErrMissingResult):
		result.Outcome = OutcomeMissingResult
		result.Detail = err.Error()

	case errors.Is(err, sandbox.ErrBudgetExceeded), errors.Is(err, sandbox.ErrStepsExceeded):
		result.Outcome = OutcomeTimedOut
		result.Detail = err.Error()
		result.Output = res.Output

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result.Outcome = OutcomeRuntimeError
		result.Detail = "cancelled before completion"
		result.Output = res.Output

	default:
		result.Outcome = OutcomeRuntimeError
		result.Detail = sandbox.Describe(err)
		result.Output = res.Output
	}
	return result
}

// record emits per-submission metrics and span attributes.
func (e *Engine) record(span trace.Span, result ExecutionResult) {
	if e.obs != nil && e.obs.Metrics != nil {
		m := e.obs.Metrics
		m.SubmissionsTotal.WithLabelValues(string(result.Outcome)).Inc()
		m.SubmissionDuration.WithLabelValues(string(result.Outcome)).Observe(result.Elapsed.Seconds())
		if result.Outcome == OutcomeValidationFailed {
			m.RejectionsTotal.WithLabelValues(string(result.Class)).Inc()
		}
	}
	if span != nil {
		span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	}
}
