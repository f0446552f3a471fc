package event

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rl1809/mall-order/internal/core/domain"
)

// Handler consumes an order-created event. Handlers run synchronously on the
// publisher's goroutine; a failing or panicking handler never fails the
// publish.
type Handler func(ctx context.Context, event domain.OrderCreatedEvent) error

// Bus is an in-process publish/subscribe fan-out for order events. The
// subscriber list is explicit: collaborators register themselves at wiring
// time, there is no hidden global dispatch.
type Bus struct {
	mu       sync.RWMutex
	handlers []namedHandler
	logger   *zap.Logger
}

type namedHandler struct {
	name string
	fn   Handler
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a named handler for all order-created events.
func (b *Bus) Subscribe(name string, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, namedHandler{name: name, fn: fn})
	b.logger.Debug("event handler subscribed", zap.String("handler", name))
}

// Publish delivers the event to every subscriber. Errors are logged, not
// propagated: materialization has already committed by the time events fire.
func (b *Bus) Publish(ctx context.Context, event domain.OrderCreatedEvent) error {
	b.mu.RLock()
	handlers := make([]namedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, event)
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, h namedHandler, event domain.OrderCreatedEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("handler", h.name),
				zap.String("order_id", event.OrderID),
				zap.Any("panic", r))
		}
	}()
	if err := h.fn(ctx, event); err != nil {
		b.logger.Error("event handler failed",
			zap.String("handler", h.name),
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
}
