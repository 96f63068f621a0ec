package orchestrator

import (
	"context"
	"time"

	"github.com/ahrav/go-promptloop/internal/cache"
	"github.com/ahrav/go-promptloop/internal/domain"
)

// EvaluationKey is the cache key of the evaluation of artifact.
func EvaluationKey(artifact string) string { return cache.ContentKey("eval", artifact) }

// CachedEvaluator consults the cache before delegating to the wrapped
// evaluator and caches successful evaluations. Failures are never cached.
type CachedEvaluator struct {
	next  Evaluator
	cache *cache.Cache
	ttl   time.Duration
}

// NewCachedEvaluator wraps next.
func NewCachedEvaluator(next Evaluator, c *cache.Cache, ttl time.Duration) *CachedEvaluator {
	return &CachedEvaluator{next: next, cache: c, ttl: ttl}
}

// Evaluate returns the cached evaluation of artifact or computes it.
func (e *CachedEvaluator) Evaluate(ctx context.Context, artifact string) (domain.Evaluation, error) {
	return cache.Memoize(ctx, e.cache, EvaluationKey(artifact), e.ttl, func(ctx context.Context) (domain.Evaluation, error) {
		return e.next.Evaluate(ctx, artifact)
	})
}
