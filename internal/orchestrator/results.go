package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
)

// SavedRun is the on-disk report of a completed run.
type SavedRun struct {
	TaskID       string                   `json:"task_id"`
	Requirements string                   `json:"requirements"`
	FinalPrompt  string                   `json:"final_prompt"`
	FinalScore   int                      `json:"final_score"`
	Outcome      domain.Outcome           `json:"outcome"`
	Iterations   []domain.Iteration       `json:"iterations"`
	Config       configuration.LoopConfig `json:"config"`
	CacheStats   cache.Stats              `json:"cache_stats"`
	SavedAt      time.Time                `json:"saved_at"`
}

// SaveResults writes result, the loop configuration and the current cache
// counters to path as indented JSON, creating parent directories.
func (o *Orchestrator) SaveResults(path string, result *domain.RunResult) error {
	if result == nil {
		return fmt.Errorf("%w: nothing to save", domain.ErrInvalidResult)
	}

	report := SavedRun{
		TaskID:       result.TaskID,
		Requirements: result.Requirements,
		FinalPrompt:  result.FinalArtifact,
		FinalScore:   result.FinalScore,
		Outcome:      result.Outcome,
		Iterations:   result.Iterations,
		Config:       o.cfg,
		CacheStats:   o.cache.Stats(),
		SavedAt:      o.now().UTC(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	o.logger.Info("results saved", "task_id", result.TaskID, "path", path)
	return nil
}
