// Package tasks answers "what happened to task X" for remote clients. The
// queue's result store is the source of truth; terminal answers are
// snapshotted in the cache for a short while so that polling clients do not
// hammer the queue.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/configuration"
	"github.com/ahrav/go-promptloop/internal/domain"
)

// Queue is the asynchronous boundary as seen by the tracker.
type Queue interface {
	// Status returns the queue's current record for taskID, or an error
	// matching domain.ErrUnknownTask.
	Status(ctx context.Context, taskID string) (*domain.TaskRecord, error)
	// Revoke cancels taskID, or terminates it when terminate is set.
	Revoke(ctx context.Context, taskID string, terminate bool) error
}

// Tracker is safe for concurrent use.
type Tracker struct {
	cache       *cache.Cache
	queue       Queue
	snapshotTTL time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New returns a tracker over c and q. A nil queue limits the tracker to
// results recorded in this process, which is how synchronous runs work.
func New(c *cache.Cache, q Queue, cfg configuration.LoopConfig, opts ...Option) *Tracker {
	t := &Tracker{
		cache:       c,
		queue:       q,
		snapshotTTL: cfg.TaskStatusCacheTTL,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "task_tracker")
	return t
}

// TaskKey is the cache key of the status snapshot for taskID.
func TaskKey(taskID string) string { return "task:" + taskID }

// Status returns the record for taskID: the cached snapshot if one exists,
// otherwise the queue's answer, snapshotted when terminal.
func (t *Tracker) Status(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	var rec domain.TaskRecord
	if t.cache.Get(ctx, TaskKey(taskID), &rec) {
		return &rec, nil
	}
	if t.queue == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTask, taskID)
	}

	fresh, err := t.queue.Status(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if fresh.State.Terminal() {
		if err := t.cache.Set(ctx, TaskKey(taskID), fresh, t.snapshotTTL); err != nil {
			t.logger.WarnContext(ctx, "task snapshot not cached", "task_id", taskID, "error", err)
		}
	}
	return fresh, nil
}

// Revoke asks the queue to cancel (or terminate) taskID and evicts its
// snapshot. Failures are logged and reported as false.
func (t *Tracker) Revoke(ctx context.Context, taskID string, terminate bool) bool {
	if t.queue == nil {
		t.logger.WarnContext(ctx, "revoke without a queue", "task_id", taskID)
		return false
	}
	if err := t.queue.Revoke(ctx, taskID, terminate); err != nil {
		t.logger.WarnContext(ctx, "task revoke failed", "task_id", taskID, "terminate", terminate, "error", err)
		return false
	}
	t.cache.Delete(ctx, TaskKey(taskID))
	t.logger.InfoContext(ctx, "task revoked", "task_id", taskID, "terminate", terminate)
	return true
}

// Record stores the success record of taskID, whose outcome is result. The
// result may come from the run cache and name another task. Like any other
// snapshot it expires after the status TTL, after which the queue is
// authoritative again.
func (t *Tracker) Record(ctx context.Context, taskID string, result *domain.RunResult) error {
	if taskID == "" || result == nil {
		return fmt.Errorf("%w: success record without task id or result", domain.ErrInvalidResult)
	}
	rec := domain.NewSucceededTask(taskID, result, t.now())
	if err := rec.Validate(); err != nil {
		return err
	}
	return t.cache.Set(ctx, TaskKey(taskID), rec, t.snapshotTTL)
}
