package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Isolator runs scripts behind an externally-terminable boundary.
//
// Each run gets its own goroutine, thread, and scope; nothing is pooled or
// reused. Termination never cooperates with the script: on budget expiry the
// controller cancels the run's context (unblocking any data loads) and
// cancels the interpreter thread, which stops at its next safepoint. If the
// goroutine still does not unwind within the teardown grace it is abandoned
// and its eventual outcome discarded — reporting latency stays bounded by
// budget + grace no matter what the script does.
type Isolator struct {
	runtime *Runtime
	budget  time.Duration
	grace   time.Duration
	logger  *slog.Logger
}

// NewIsolator creates an Isolator around a Runtime.
func NewIsolator(runtime *Runtime, cfg Config, logger *slog.Logger) *Isolator {
	budget := cfg.Budget
	if budget <= 0 {
		budget = defaultBudget
	}
	grace := cfg.TeardownGrace
	if grace <= 0 {
		grace = defaultTeardownGrace
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Isolator{
		runtime: runtime,
		budget:  budget,
		grace:   grace,
		logger:  logger,
	}
}

// Budget returns the default wall-clock budget.
func (iso *Isolator) Budget() time.Duration { return iso.budget }

// runOutcome carries the goroutine's result across the isolation boundary.
type runOutcome struct {
	value any
	steps uint64
	err   error
}

// Run executes one invocation to completion or termination. The returned
// RunResult is always non-nil and carries whatever output the script
// produced; err classifies the failure (nil on success).
func (iso *Isolator) Run(ctx context.Context, inv Invocation) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return &RunResult{}, err
	}

	// 1. Resolve the wall-clock budget.
	budget := inv.Budget
	if budget <= 0 {
		budget = iso.budget
	}

	// 2. The run context: cancelled on budget expiry so in-flight data
	// loads unblock alongside the interpreter.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// 3. Fresh per-run state — output buffer and interpreter thread.
	out := newOutputBuffer(iso.runtime.maxOutputBytes)
	thread := iso.runtime.newThread(inv.Label, out)

	iso.logger.InfoContext(ctx, "script run starting",
		slog.String("run", inv.Label),
		slog.Int("code_bytes", len(inv.Code)),
		slog.Duration("budget", budget),
	)

	// 4. Launch the run goroutine — the isolation boundary.
	done := make(chan runOutcome, 1)
	start := time.Now()
	go func() {
		var oc runOutcome
		defer func() {
			if p := recover(); p != nil {
				if _, ok := p.(stepLimit); ok {
					oc.err = ErrStepsExceeded
				} else {
					iso.logger.Error("script run panicked",
						slog.String("run", inv.Label),
						slog.Any("panic", p),
					)
					oc.err = fmt.Errorf("internal error in script run: %v", p)
				}
			}
			oc.steps = thread.ExecutionSteps()
			done <- oc
		}()
		oc.value, oc.err = iso.runtime.execute(runCtx, thread, inv)
	}()

	// 5. Wait for completion, budget expiry, or caller cancellation.
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case oc := <-done:
		elapsed := time.Since(start)
		result := &RunResult{Output: out.String(), Elapsed: elapsed}
		if oc.err != nil {
			iso.logger.WarnContext(ctx, "script run failed",
				slog.String("run", inv.Label),
				slog.String("error", oc.err.Error()),
				slog.Duration("elapsed", elapsed),
				slog.Uint64("steps", oc.steps),
			)
			return result, oc.err
		}
		result.Value = oc.value
		iso.logger.InfoContext(ctx, "script run completed",
			slog.String("run", inv.Label),
			slog.Duration("elapsed", elapsed),
			slog.Uint64("steps", oc.steps),
			slog.Int("output_bytes", len(result.Output)),
		)
		return result, nil

	case <-timer.C:
		// 6. Budget exceeded: terminate from outside.
		cancelRun()
		thread.Cancel("wall clock budget exceeded")
		iso.awaitTeardown(done, inv.Label)
		elapsed := time.Since(start)
		iso.logger.WarnContext(ctx, "script run timed out",
			slog.String("run", inv.Label),
			slog.Duration("budget", budget),
			slog.Duration("elapsed", elapsed),
		)
		return &RunResult{Output: out.String(), Elapsed: elapsed},
			fmt.Errorf("%w (budget %s)", ErrBudgetExceeded, budget)

	case <-ctx.Done():
		// Caller gave up; tear down the same way.
		cancelRun()
		thread.Cancel("run cancelled")
		iso.awaitTeardown(done, inv.Label)
		return &RunResult{Output: out.String(), Elapsed: time.Since(start)}, ctx.Err()
	}
}

// awaitTeardown gives a cancelled run a bounded chance to unwind cleanly.
func (iso *Isolator) awaitTeardown(done <-chan runOutcome, label string) {
	select {
	case <-done:
	case <-time.After(iso.grace):
		iso.logger.Warn("abandoning script goroutine after teardown grace",
			slog.String("run", label),
			slog.Duration("grace", iso.grace),
		)
	}
}
