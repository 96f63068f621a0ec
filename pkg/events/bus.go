package events

import (
	"sync"
	"sync/atomic"
)

// Bus is a bounded drop-oldest queue between one producing run and one
// consumer. It is safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	ch      chan Progress
	closed  bool
	dropped atomic.Int64
}

// NewBus returns a bus holding at most size undelivered events.
func NewBus(size int) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{ch: make(chan Progress, size)}
}

// Publish enqueues p, evicting the oldest undelivered event when full.
// Publishing to a closed bus is a no-op.
func (b *Bus) Publish(p Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- p:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped.Add(1)
		default:
		}
	}
}

// Events is the consumer side. It is closed by Close after the remaining
// events have been buffered.
func (b *Bus) Events() <-chan Progress { return b.ch }

// Close stops accepting events. Buffered events stay readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Dropped reports how many events were evicted unread.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }
