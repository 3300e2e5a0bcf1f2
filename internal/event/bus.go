package event

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pressplay/payments/internal/domain"
	"github.com/pressplay/payments/internal/logging"
)

// Handler consumes a domain event. Handlers receive immutable snapshots and
// must tolerate redelivery.
type Handler func(ctx context.Context, e domain.Event) error

// Bus fans domain events out to an ordered list of handlers, invoked
// synchronously in registration order. A handler error is logged and does
// not stop later handlers or fail the publishing operation: the money state
// is already committed by the time an event is published.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, e domain.Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	log := logging.FromContext(ctx)
	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			log.Error("event handler failed", "event", e.Name(), "error", err)
		}
	}
}
