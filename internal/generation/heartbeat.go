package generation

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-promptloop/pkg/activity"
)

// heartbeater records run heartbeats and remembers the last details so a
// ticker can repeat them while the loop is blocked inside a collaborator
// call that emits no progress.
type heartbeater struct {
	record func(context.Context, activity.HeartbeatDetails)

	mu   sync.Mutex
	last activity.HeartbeatDetails
}

func (h *heartbeater) beat(ctx context.Context, d activity.HeartbeatDetails) {
	h.mu.Lock()
	h.last = d
	h.mu.Unlock()
	h.record(ctx, d)
}

func (h *heartbeater) lastDetails() activity.HeartbeatDetails {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// keepAlive repeats the last heartbeat every interval until stop is called
// or ctx ends. stop waits for the ticker goroutine to exit.
func (h *heartbeater) keepAlive(ctx context.Context, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.record(ctx, h.lastDetails())
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
		<-exited
	}
}

// minHeartbeatInterval bounds the ticker for tiny timeouts.
const minHeartbeatInterval = time.Millisecond

// heartbeatInterval is a third of the heartbeat timeout so that two missed
// ticks still land inside it.
func heartbeatInterval(timeout time.Duration) time.Duration {
	return max(timeout/3, minHeartbeatInterval)
}
