package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/benputley1/cex-reporter-sub000/internal/validator"
)

// Outcome classifies how a submission ended. Every submission gets exactly
// one outcome — there is no error path out of the engine.
type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeValidationFailed Outcome = "validation_failed"
	OutcomeRuntimeError     Outcome = "runtime_error"
	OutcomeTimedOut         Outcome = "timed_out"
	OutcomeMissingResult    Outcome = "missing_result"
)

// Submission is one analysis script handed to the engine.
type Submission struct {
	// ID identifies the submission. Zero = generated.
	ID uuid.UUID

	// Code is the script source.
	Code string

	// BypassCache forces fresh provider loads for this run. The cache is
	// neither read nor written.
	BypassCache bool
}

// ExecutionResult is the uniform answer for every submission.
//
// Output policy by outcome:
//   - succeeded: full captured output.
//   - runtime_error, timed_out: output captured up to the failure point.
//   - validation_failed, missing_result: no output. Both are deterministic
//     local failures; nothing a partial print stream could add.
type ExecutionResult struct {
	ID      uuid.UUID       `json:"id"`
	Outcome Outcome         `json:"outcome"`
	Value   any             `json:"value,omitempty"`
	Output  string          `json:"output,omitempty"`
	Elapsed time.Duration   `json:"elapsed"`
	Detail  string          `json:"detail,omitempty"`
	Class   validator.Class `json:"class,omitempty"` // set when validation failed
}

// Succeeded reports whether the run produced a value.
func (r ExecutionResult) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}
