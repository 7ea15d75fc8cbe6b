package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
	"bidding-service/pkg/utils"
)

// RabbitEventPublisher emits the service's outbound domain events. Each event
// is wrapped in the shared envelope and keyed by auction id.
type RabbitEventPublisher struct {
	broker         *Broker
	bidPlacedQueue string
	finishedQueue  string
	log            logger.Logger
}

func NewRabbitEventPublisher(broker *Broker, bidPlacedQueue, finishedQueue string, log logger.Logger) (*RabbitEventPublisher, error) {
	for _, queue := range []string{bidPlacedQueue, finishedQueue} {
		if err := broker.DeclareQueue(queue); err != nil {
			return nil, err
		}
	}

	return &RabbitEventPublisher{
		broker:         broker,
		bidPlacedQueue: bidPlacedQueue,
		finishedQueue:  finishedQueue,
		log:            log,
	}, nil
}

func (p *RabbitEventPublisher) PublishBidPlaced(ctx context.Context, event *domain.BidPlacedEvent) error {
	if err := p.publish(ctx, p.bidPlacedQueue, domain.EventBidPlaced, event.AuctionID, event); err != nil {
		return err
	}

	p.log.Info("Published bid placed event",
		"auction_id", event.AuctionID, "bidder", event.Bidder, "amount", event.Amount)
	return nil
}

func (p *RabbitEventPublisher) PublishAuctionFinished(ctx context.Context, event *domain.AuctionFinishedEvent) error {
	if err := p.publish(ctx, p.finishedQueue, domain.EventAuctionFinished, event.ID, event); err != nil {
		return err
	}

	p.log.Info("Published auction finished event",
		"auction_id", event.ID, "winner", event.Winner, "reserve_met", event.ReserveMet)
	return nil
}

func (p *RabbitEventPublisher) publish(ctx context.Context, queue, eventType, key string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	env := domain.Envelope{
		EventID:    utils.GenerateID("evt"),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payloadBytes,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}

	return p.broker.Publish(ctx, queue, key, nil, body)
}

// DeadLetterPublisher quarantines unprocessable messages with enough context
// for manual inspection.
type DeadLetterPublisher struct {
	broker *Broker
	queue  string
	log    logger.Logger
}

type deadLetterMessage struct {
	OriginalQueue string    `json:"original_queue"`
	OriginalBody  string    `json:"original_body"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
}

func NewDeadLetterPublisher(broker *Broker, queue string, log logger.Logger) (*DeadLetterPublisher, error) {
	if err := broker.DeclareQueue(queue); err != nil {
		return nil, err
	}
	return &DeadLetterPublisher{broker: broker, queue: queue, log: log}, nil
}

func (p *DeadLetterPublisher) Quarantine(ctx context.Context, queue string, body []byte, reason string) error {
	msg := deadLetterMessage{
		OriginalQueue: queue,
		OriginalBody:  string(body),
		Reason:        reason,
		FailedAt:      time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := p.broker.Publish(ctx, p.queue, "", nil, payload); err != nil {
		return err
	}

	p.log.Warn("Message quarantined",
		"original_queue", queue, "reason", reason, "payload", string(body))
	return nil
}
