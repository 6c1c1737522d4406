// Package sandbox executes validated analysis scripts in an isolated
// interpreter. Scripts see exactly the names the engine injects — data
// functions, the utility modules, and the interpreter's arithmetic core —
// and nothing else. There is no filesystem, no network, no process access,
// and no way for a script to keep the interpreter alive past its budget.
package sandbox

import (
	"errors"
	"time"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

// Sentinel errors classifying failed runs. The engine maps these onto
// result outcomes; nothing here escapes as a panic.
var (
	// ErrMissingResult marks a script that ran to completion without ever
	// assigning the designated result variable.
	ErrMissingResult = errors.New("script completed without assigning a result")

	// ErrBudgetExceeded marks a run terminated by the wall-clock budget.
	ErrBudgetExceeded = errors.New("wall clock budget exceeded")

	// ErrStepsExceeded marks a run terminated by the execution step budget.
	ErrStepsExceeded = errors.New("step budget exceeded")
)

const (
	// maxOutputBytes caps captured print output to prevent OOM from chatty scripts.
	maxOutputBytes = 1 << 20 // 1 MB

	defaultBudget        = 30 * time.Second
	defaultTeardownGrace = 500 * time.Millisecond
	defaultMaxSteps      = 500_000_000
	defaultResultName    = "result"

	// scriptFilename appears in script error messages and backtraces.
	scriptFilename = "script.star"
)

// Config configures the runtime and its isolation controller.
// Zero values select the defaults above.
type Config struct {
	// ResultName is the global a script must assign its result to.
	ResultName string

	// MaxOutputBytes caps captured print output per run.
	MaxOutputBytes int

	// MaxSteps is the deterministic execution-step budget per run.
	// Negative disables step accounting.
	MaxSteps int64

	// Budget is the default wall-clock budget per run.
	Budget time.Duration

	// TeardownGrace is how long the controller waits for a cancelled run's
	// goroutine to unwind before abandoning it.
	TeardownGrace time.Duration
}

// Invocation is one validated script ready to run.
type Invocation struct {
	// Label identifies the run in logs and thread names (e.g. submission ID).
	Label string

	// Code is the script source. It must already have passed validation.
	Code string

	// Loader serves the run's data function calls. The runtime binds the
	// data functions to the run's cancellable context around it.
	Loader capability.Loader

	// Budget overrides the controller's wall-clock budget. Zero = default.
	Budget time.Duration
}

// RunResult is the raw outcome of one run. Output is always populated with
// whatever the script printed before finishing or being terminated.
type RunResult struct {
	// Value is the script's result converted to plain Go values.
	// Nil unless the run succeeded.
	Value any

	// Output is the captured print stream, in emission order.
	Output string

	// Elapsed is the wall-clock time the run consumed.
	Elapsed time.Duration
}
