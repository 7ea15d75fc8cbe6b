package services

import (
	"context"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

// Dispatcher routes envelopes to the handler registered for their event type.
// Payload shapes are tagged variants; a type nobody registered is permanently
// unprocessable, not retryable.
type Dispatcher struct {
	handlers map[string]domain.EventHandler
	log      logger.Logger
}

func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]domain.EventHandler),
		log:      log,
	}
}

func (d *Dispatcher) Register(eventType string, handler domain.EventHandler) {
	d.handlers[eventType] = handler
}

func (d *Dispatcher) Handle(ctx context.Context, env *domain.Envelope) domain.Decision {
	handler, ok := d.handlers[env.EventType]
	if !ok {
		d.log.Error("No handler for event type",
			"event_type", env.EventType, "event_id", env.EventID)
		return domain.DeadLetter
	}
	return handler(ctx, env)
}
