package eventbus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

// Handler reacts to a published event. Handlers type-switch on the events
// they care about and ignore the rest.
type Handler func(ctx context.Context, event Event) error

type subscriber struct {
	name    string
	handler Handler
}

// Bus fans events out synchronously, in subscription order. A failing or
// panicking subscriber never stops delivery to the others.
type Bus struct {
	mu          sync.RWMutex
	subscribers []subscriber
	logg        *logger.Logger
}

func New(logg *logger.Logger) *Bus {
	return &Bus{logg: logg}
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, subscriber{name: name, handler: handler})
}

// Publish delivers event to every subscriber and returns their combined errors.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}
	b.mu.RLock()
	subs := make([]subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	var errs error
	for _, sub := range subs {
		if err := b.deliver(ctx, sub, event); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sub.name, err))
			if b.logg != nil {
				logCtx := b.logg.WithFields(ctx, map[string]any{
					"subscriber": sub.name,
					"event":      event.EventName(),
				})
				b.logg.Error(logCtx, "event subscriber failed", err)
			}
		}
	}
	return errs
}

func (b *Bus) deliver(ctx context.Context, sub subscriber, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler(ctx, event)
}
