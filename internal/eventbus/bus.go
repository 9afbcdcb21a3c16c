// Package eventbus provides an in-process publish/subscribe channel used to
// report sync completion, failures and connectivity changes to observers.
package eventbus

import (
	"log/slog"
	"sync"
)

// Topics published by the agent.
const (
	TopicSyncCompleted       = "sync.completed"
	TopicSyncFailed          = "sync.failed"
	TopicConnectivityChanged = "connectivity.changed"
)

// Handler receives events published on a topic.
type Handler func(event any)

// Bus dispatches events to subscribers synchronously, in registration order.
// A panicking subscriber is recovered and logged so it cannot prevent
// delivery to subsequent subscribers.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates a new event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic. Handlers run in registration
// order on the publisher's goroutine.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish delivers the event to every subscriber of the topic.
func (b *Bus) Publish(topic string, event any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(topic, handler, event)
	}
}

// dispatch runs one handler with panic isolation.
func (b *Bus) dispatch(topic string, handler Handler, event any) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Error("event subscriber panicked",
					slog.String("topic", topic),
					slog.Any("panic", r),
				)
			}
		}
	}()
	handler(event)
}
