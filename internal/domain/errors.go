package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest indicates that a run request contains invalid data.
var ErrInvalidRequest = errors.New("invalid run request")

// ErrInvalidConfig indicates that the loop or service configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrInvalidResult indicates that a run result violates its structural invariants.
var ErrInvalidResult = errors.New("invalid run result")

// ErrUnknownTask is the not-found signal for status and revoke lookups on an
// identifier the queue has never seen. Callers test for it with errors.Is and
// map it to a 404-style response rather than treating it as a failure.
var ErrUnknownTask = errors.New("unknown task")

// ConfigurationError reports an invalid option detected while building the
// immutable configuration. It is fatal at startup.
type ConfigurationError struct {
	// Field names the offending option using its dotted configuration key.
	Field string
	// Reason is a human-readable description of the violated constraint.
	Reason string
	// Cause is the underlying validation error, if any.
	Cause error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Field, e.Reason, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Unwrap returns the underlying cause error for error chain inspection.
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// Is reports ErrInvalidConfig as a match so callers can test the class.
func (e *ConfigurationError) Is(target error) bool { return target == ErrInvalidConfig }

// CollaboratorKind classifies a failure of one of the two external collaborators.
type CollaboratorKind string

const (
	// GenerationFailure marks a failed initial generation or refinement.
	GenerationFailure CollaboratorKind = "generation_failure"

	// EvaluationFailure marks a failed evaluation, including collaborator
	// output that could not be parsed into a score.
	EvaluationFailure CollaboratorKind = "evaluation_failure"
)

// CollaboratorError is returned by Generator and Evaluator implementations.
// The orchestrator propagates it unchanged; the retry decision belongs to the
// asynchronous boundary, which reads Retryable.
type CollaboratorError struct {
	// Kind is the classified failure kind.
	Kind CollaboratorKind
	// Op names the collaborator operation ("generate_initial", "refine", "evaluate").
	Op string
	// Message provides human-readable error context.
	Message string
	// Retryable indicates whether a later attempt of the whole run might succeed.
	Retryable bool
	// Cause wraps the underlying error.
	Cause error
}

func (e *CollaboratorError) Error() string {
	retryStr := "non-retryable"
	if e.Retryable {
		retryStr = "retryable"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s in %s: %s (%s): %v", e.Kind, e.Op, e.Message, retryStr, e.Cause)
	}
	return fmt.Sprintf("%s in %s: %s (%s)", e.Kind, e.Op, e.Message, retryStr)
}

// Unwrap supports error chain traversal with errors.Is and errors.As.
func (e *CollaboratorError) Unwrap() error { return e.Cause }

// IsRetryable reports whether err carries a retryable collaborator failure.
// Errors that are not collaborator failures are treated as non-retryable.
func IsRetryable(err error) bool {
	var cerr *CollaboratorError
	if errors.As(err, &cerr) {
		return cerr.Retryable
	}
	return false
}
