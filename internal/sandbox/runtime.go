package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.starlark.net/starlark"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
	"github.com/benputley1/cex-reporter-sub000/internal/scriptlib"
)

// Runtime builds the execution scope for a script and runs it to completion.
//
// Security guarantees:
//   - The scope is constructed positively: data functions, utility modules,
//     and the interpreter's arithmetic core. Nothing host-reaching exists to
//     be removed.
//   - Universe introspection builtins are shadowed by fail-closed stubs.
//   - print is routed to a capped in-memory buffer — no real stream.
//   - load() resolves only the allow-listed modules.
//   - Recursion is disabled; the step budget bounds loop work.
type Runtime struct {
	resultName     string
	maxOutputBytes int
	maxSteps       int64
	logger         *slog.Logger
}

// NewRuntime creates a Runtime.
func NewRuntime(cfg Config, logger *slog.Logger) *Runtime {
	resultName := cfg.ResultName
	if resultName == "" {
		resultName = defaultResultName
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = maxOutputBytes
	}
	maxSteps := cfg.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runtime{
		resultName:     resultName,
		maxOutputBytes: maxOutput,
		maxSteps:       maxSteps,
		logger:         logger,
	}
}

// ResultName returns the global a script must assign.
func (r *Runtime) ResultName() string { return r.resultName }

// stepLimit is the panic payload OnMaxSteps raises; the run goroutine
// recovers it and reports ErrStepsExceeded.
type stepLimit struct{}

// newThread prepares an interpreter thread with print capture, the module
// loader, and the step budget wired in.
func (r *Runtime) newThread(label string, out *outputBuffer) *starlark.Thread {
	thread := &starlark.Thread{
		Name: label,
		Print: func(_ *starlark.Thread, msg string) {
			out.appendLine(msg)
		},
		Load: scriptlib.Load,
	}
	if r.maxSteps > 0 {
		thread.SetMaxExecutionSteps(uint64(r.maxSteps))
		thread.OnMaxSteps = func(*starlark.Thread) {
			panic(stepLimit{})
		}
	}
	return thread
}

// execute runs one script on the given thread and extracts its result.
func (r *Runtime) execute(ctx context.Context, thread *starlark.Thread, inv Invocation) (any, error) {
	// 1. Assemble the positive scope for this run.
	predeclared := make(starlark.StringDict)
	for name, mod := range scriptlib.Modules() {
		predeclared[name] = mod
	}
	if inv.Loader != nil {
		for name, fn := range capability.Builtins(ctx, inv.Loader) {
			predeclared[name] = fn
		}
	}
	// Shadow the universe's introspection builtins. The validator already
	// rejects these statically; the stubs keep the rule true at runtime too.
	for _, name := range []string{"getattr", "hasattr", "dir"} {
		predeclared[name] = failClosed(name)
	}

	// 2. Parse, resolve, and run.
	globals, err := starlark.ExecFileOptions(scriptlib.Dialect(), thread, scriptFilename, inv.Code, predeclared)
	if err != nil {
		return nil, err
	}

	// 3. The designated result global must exist.
	value, ok := globals[r.resultName]
	if !ok {
		return nil, fmt.Errorf("%w: assign %q before the script ends", ErrMissingResult, r.resultName)
	}

	// 4. Convert to plain Go values before anything leaves the sandbox.
	converted, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", r.resultName, err)
	}
	return converted, nil
}

// Describe renders a run error for script authors. Script-level failures
// come back with their backtrace so the failing line is visible; everything
// else is the plain error text.
func Describe(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

// failClosed returns a stub builtin that rejects every call.
func failClosed(name string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, _ starlark.Tuple, _ []starlark.Tuple) (starlark.Value, error) {
		return nil, fmt.Errorf("%s is not available in this sandbox", b.Name())
	})
}

// outputBuffer captures print output up to a byte cap. Writes past the cap
// are discarded and the rendered output carries a truncation notice.
// Safe for concurrent use: the controller may read it while an abandoned
// run goroutine is still printing.
type outputBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	remaining int
	truncated bool
}

func newOutputBuffer(limit int) *outputBuffer {
	return &outputBuffer{remaining: limit}
}

func (b *outputBuffer) appendLine(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining <= 0 {
		b.truncated = true
		return
	}
	line := msg + "\n"
	if len(line) > b.remaining {
		line = line[:b.remaining]
		b.truncated = true
	}
	n, _ := b.buf.WriteString(line)
	b.remaining -= n
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n... [output truncated]"
	}
	return b.buf.String()
}
