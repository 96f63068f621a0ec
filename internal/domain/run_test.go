package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-promptloop/internal/domain"
)

func intPtr(v int) *int { return &v }

func TestRunRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     domain.RunRequest
		wantErr bool
	}{
		{name: "valid without budget", req: domain.RunRequest{Requirements: "a helpful assistant"}},
		{name: "valid with budget", req: domain.RunRequest{Requirements: "a helpful assistant", MaxIterations: intPtr(3)}},
		{name: "empty requirements", req: domain.RunRequest{}, wantErr: true},
		{name: "blank requirements", req: domain.RunRequest{Requirements: " \n\t "}, wantErr: true},
		{name: "zero budget", req: domain.RunRequest{Requirements: "x", MaxIterations: intPtr(0)}, wantErr: true},
		{name: "negative budget", req: domain.RunRequest{Requirements: "x", MaxIterations: intPtr(-2)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidRequest)
				return
			}
			require.NoError(t, err)
		})
	}
}

func validResult() *domain.RunResult {
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return &domain.RunResult{
		TaskID:        "task-1",
		FinalArtifact: "v2",
		FinalScore:    820,
		Outcome:       domain.OutcomeTargetReached,
		Requirements:  "reqs",
		CompletedAt:   t0.Add(2 * time.Second),
		Iterations: []domain.Iteration{
			{Index: 1, Artifact: "v1", Evaluation: domain.Evaluation{Score: 500}, Timestamp: t0},
			{Index: 2, Artifact: "v2", Evaluation: domain.Evaluation{Score: 820}, Timestamp: t0.Add(time.Second)},
		},
	}
}

func TestRunResultValidate(t *testing.T) {
	t.Run("valid result", func(t *testing.T) {
		require.NoError(t, validResult().Validate())
	})

	mutations := map[string]func(r *domain.RunResult){
		"no iterations":            func(r *domain.RunResult) { r.Iterations = nil },
		"index gap":                func(r *domain.RunResult) { r.Iterations[1].Index = 3 },
		"final score mismatch":     func(r *domain.RunResult) { r.FinalScore = 500 },
		"final artifact mismatch":  func(r *domain.RunResult) { r.FinalArtifact = "v1" },
		"timestamps go backwards":  func(r *domain.RunResult) { r.Iterations[1].Timestamp = r.Iterations[0].Timestamp.Add(-time.Second) },
		"evaluation out of bounds": func(r *domain.RunResult) { r.Iterations[0].Evaluation.Score = 5000 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			r := validResult()
			mutate(r)
			err := r.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidResult))
		})
	}
}

func TestRunResultLastIteration(t *testing.T) {
	var nilResult *domain.RunResult
	_, ok := nilResult.LastIteration()
	assert.False(t, ok)

	last, ok := validResult().LastIteration()
	require.True(t, ok)
	assert.Equal(t, 2, last.Index)
	assert.Equal(t, 820, last.Score())
}
