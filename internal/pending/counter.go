// Package pending maintains the derived count of sales waiting to sync.
package pending

import (
	"context"
	"sync"
)

// Source counts the pending rows in durable storage.
type Source interface {
	CountPending(ctx context.Context) (int, error)
}

// Counter is the in-memory SyncCounter. It is never persisted; Refresh
// recomputes it from the local store after every enqueue, dequeue and sync
// cycle.
type Counter struct {
	src Source

	// refreshMu orders refreshes so a slow, older count never lands after
	// a newer one.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	value     int
	observers []func(int)
}

// NewCounter returns a counter reading from src. The value is zero until
// the first Refresh.
func NewCounter(src Source) *Counter {
	return &Counter{src: src}
}

// Refresh recomputes the count. On error the previous value is kept.
func (c *Counter) Refresh(ctx context.Context) (int, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	n, err := c.src.CountPending(ctx)
	if err != nil {
		return c.Value(), err
	}

	c.mu.Lock()
	c.value = n
	observers := make([]func(int), len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, fn := range observers {
		fn(n)
	}
	return n, nil
}

// Value returns the last computed count.
func (c *Counter) Value() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// OnChange registers fn to receive every refreshed value.
func (c *Counter) OnChange(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}
