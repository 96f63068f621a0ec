package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
)

// Operation names reported in collaborator errors.
const (
	OpGenerateInitial = "generate_initial"
	OpRefine          = "refine"
	OpEvaluate        = "evaluate"
)

// completer is the part of Client the collaborators use.
type completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
}

// Architect generates and refines artifacts.
type Architect struct {
	client      completer
	temperature float64
	logger      *slog.Logger
}

// NewArchitect returns a generator sampling at the configured generation
// temperature.
func NewArchitect(client *Client, cfg configuration.LLMConfig, logger *slog.Logger) *Architect {
	return newArchitect(client, cfg.GenerationTemperature, logger)
}

func newArchitect(client completer, temperature float64, logger *slog.Logger) *Architect {
	if logger == nil {
		logger = slog.Default()
	}
	return &Architect{
		client:      client,
		temperature: temperature,
		logger:      logger.With("component", "architect"),
	}
}

// GenerateInitial produces the first artifact for requirements.
func (a *Architect) GenerateInitial(ctx context.Context, requirements string) (string, error) {
	out, err := a.client.Complete(ctx, ChatRequest{
		Messages:    initialMessages(requirements),
		Temperature: a.temperature,
	})
	if err != nil {
		return "", collaboratorError(domain.GenerationFailure, OpGenerateInitial, "initial generation failed", err)
	}
	return out, nil
}

// Refine produces a replacement artifact from the previous one and its
// evaluation.
func (a *Architect) Refine(ctx context.Context, artifact string, eval domain.Evaluation, requirements string) (string, error) {
	out, err := a.client.Complete(ctx, ChatRequest{
		Messages:    refineMessages(artifact, eval, requirements),
		Temperature: a.temperature,
	})
	if err != nil {
		return "", collaboratorError(domain.GenerationFailure, OpRefine, "refinement failed", err)
	}
	return out, nil
}

// Judge evaluates artifacts.
type Judge struct {
	client      completer
	temperature float64
	logger      *slog.Logger
}

// NewJudge returns an evaluator sampling at the configured evaluation
// temperature.
func NewJudge(client *Client, cfg configuration.LLMConfig, logger *slog.Logger) *Judge {
	return newJudge(client, cfg.EvaluationTemperature, logger)
}

func newJudge(client completer, temperature float64, logger *slog.Logger) *Judge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{
		client:      client,
		temperature: temperature,
		logger:      logger.With("component", "judge"),
	}
}

// Evaluate scores artifact.
func (j *Judge) Evaluate(ctx context.Context, artifact string) (domain.Evaluation, error) {
	out, err := j.client.Complete(ctx, ChatRequest{
		Messages:    evaluateMessages(artifact),
		Temperature: j.temperature,
	})
	if err != nil {
		return domain.Evaluation{}, collaboratorError(domain.EvaluationFailure, OpEvaluate, "evaluation call failed", err)
	}

	eval := ParseEvaluation(out)
	if !strings.Contains(out, scoreHeader) {
		j.logger.WarnContext(ctx, "evaluation without score line, scoring 0", "output_len", len(out))
	}
	return eval, nil
}

func collaboratorError(kind domain.CollaboratorKind, op, msg string, err error) error {
	// Already classified further down; keep the innermost classification.
	var cerr *domain.CollaboratorError
	if errors.As(err, &cerr) {
		return err
	}
	return &domain.CollaboratorError{
		Kind:      kind,
		Op:        op,
		Message:   msg,
		Retryable: IsRetryable(err),
		Cause:     err,
	}
}
