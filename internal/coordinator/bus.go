package coordinator

import (
	"context"
	"sync"
)

// Bus is an in-process Coordinator. It serves single-instance deployments
// (no Redis configured) and lets tests run several session services against
// one shared bus to simulate a multi-instance cluster. Dispatch is
// synchronous, which keeps test timing deterministic.
type Bus struct {
	mu       sync.RWMutex
	handlers []func(Event)
	closed   bool
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]func(Event), len(b.handlers))
	copy(handlers, b.handlers)
	closed := b.closed
	b.mu.RUnlock()

	if closed {
		return nil
	}
	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

func (b *Bus) Subscribe(handler func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
