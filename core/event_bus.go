package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// InProcessEventBus fans lifecycle events out to subscribers in
// registration order. Handler failures are joined and returned so the
// caller can log them; one failing subscriber does not stop the rest.
type InProcessEventBus struct {
	mu       sync.RWMutex
	handlers []LifecycleEventHandler
}

func NewInProcessEventBus() *InProcessEventBus {
	return &InProcessEventBus{handlers: make([]LifecycleEventHandler, 0)}
}

func (b *InProcessEventBus) Subscribe(handler LifecycleEventHandler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *InProcessEventBus) Publish(ctx context.Context, event LifecycleEvent) error {
	var publishErr error
	for i, handler := range b.subscribers() {
		if handler == nil {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			publishErr = errors.Join(publishErr, fmt.Errorf("core: lifecycle subscriber %d failed for event %q: %w", i, event.Name, err))
		}
	}
	return publishErr
}

func (b *InProcessEventBus) subscribers() []LifecycleEventHandler {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LifecycleEventHandler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

var _ LifecycleEventBus = (*InProcessEventBus)(nil)
