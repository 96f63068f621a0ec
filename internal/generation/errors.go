// Package generation hosts the Temporal activity that executes one attempt
// of a refinement run on a worker. It turns loop progress into heartbeats
// and loop failures into Temporal application errors that tell the workflow
// whether another attempt is worthwhile.
package generation

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/ahrav/go-promptloop/internal/domain"
)

// Application error types reported to the workflow.
const (
	ErrTypeValidation = "Validation"
	ErrTypeInternal   = "Internal"
	ErrTypeCanceled   = "Canceled"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a retryable Temporal application error.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}

// classify maps a run failure onto a Temporal application error. Collaborator
// failures keep their own retry classification and use their kind as the
// error type; invalid input and cancellation are final; anything else is
// assumed transient.
func classify(err error) error {
	var cerr *domain.CollaboratorError
	switch {
	case errors.As(err, &cerr):
		if cerr.Retryable {
			return retryable(string(cerr.Kind), err, cerr.Message)
		}
		return nonRetryable(string(cerr.Kind), err, cerr.Message)
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidConfig):
		return nonRetryable(ErrTypeValidation, err, "invalid run")
	case errors.Is(err, context.Canceled):
		return nonRetryable(ErrTypeCanceled, err, "run canceled")
	default:
		return retryable(ErrTypeInternal, err, "run failed")
	}
}
