package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

const attemptsHeader = "x-attempts"

// Consumer drives one queue's deliveries through an event handler and maps
// the handler's Decision onto the broker's acknowledgment protocol. A bounded
// worker pool processes independent auctions in parallel; per-auction
// serialization is the store's job.
type Consumer struct {
	broker        *Broker
	deadLetters   domain.DeadLetterSink
	log           logger.Logger
	workers       int
	maxRetries    int
	retryBackoff  time.Duration
	handleTimeout time.Duration
	wg            sync.WaitGroup
}

func NewConsumer(
	broker *Broker,
	deadLetters domain.DeadLetterSink,
	log logger.Logger,
	workers, maxRetries int,
	retryBackoff, handleTimeout time.Duration,
) *Consumer {
	// Safety defaults in case of a broken env/config
	if workers <= 0 {
		workers = 4
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if retryBackoff <= 0 {
		retryBackoff = 1 * time.Second
	}
	if handleTimeout <= 0 {
		handleTimeout = 30 * time.Second
	}

	return &Consumer{
		broker:        broker,
		deadLetters:   deadLetters,
		log:           log,
		workers:       workers,
		maxRetries:    maxRetries,
		retryBackoff:  retryBackoff,
		handleTimeout: handleTimeout,
	}
}

// Start subscribes to the queue and launches the worker pool. It returns once
// consumption is set up; Wait blocks until the delivery stream has closed and
// in-flight messages have drained.
func (c *Consumer) Start(ctx context.Context, queue string, handler domain.EventHandler) error {
	deliveries, err := c.broker.Consume(queue, c.workers)
	if err != nil {
		return err
	}

	c.log.Info("Starting consumer",
		"queue", queue,
		"workers", c.workers,
		"max_retries", c.maxRetries,
		"retry_backoff", c.retryBackoff,
	)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.process(ctx, queue, d, handler)
				}
			}
		}()
	}

	return nil
}

// Wait blocks until all workers have finished their in-flight deliveries.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

func (c *Consumer) process(ctx context.Context, queue string, d amqp.Delivery, handler domain.EventHandler) {
	// Bounded per-message processing time; an expired message goes back to
	// the broker instead of being held indefinitely.
	hctx, cancel := context.WithTimeout(context.Background(), c.handleTimeout)
	defer cancel()

	env, err := domain.DecodeEnvelope(d.Body)
	if err != nil {
		c.log.Error("Rejecting undecodable message",
			"queue", queue, "payload", string(d.Body), "error", err)
		c.quarantineAndAck(hctx, queue, d, err.Error())
		return
	}

	decision := handler(hctx, env)

	switch decision {
	case domain.Ack:
		if err := d.Ack(false); err != nil {
			c.log.Error("Failed to ack message", "queue", queue, "event_id", env.EventID, "error", err)
		}

	case domain.Requeue:
		c.log.Warn("Requeueing message for broker redelivery",
			"queue", queue, "event_id", env.EventID, "event_type", env.EventType)
		if err := d.Nack(false, true); err != nil {
			c.log.Error("Failed to nack message", "queue", queue, "event_id", env.EventID, "error", err)
		}

	case domain.Retry:
		c.retry(hctx, queue, d, env)

	case domain.DeadLetter:
		c.log.Error("Dead-lettering message",
			"queue", queue, "event_id", env.EventID, "event_type", env.EventType,
			"payload", string(d.Body))
		c.quarantineAndAck(hctx, queue, d, "rejected by handler")
	}
}

// retry republishes the message with an incremented attempt counter after an
// exponential backoff, up to maxRetries; exhausted messages are quarantined as
// unresolved rather than silently dropped.
func (c *Consumer) retry(ctx context.Context, queue string, d amqp.Delivery, env *domain.Envelope) {
	attempts := attemptCount(d.Headers)
	if attempts >= c.maxRetries {
		c.log.Error("Retry attempts exhausted",
			"queue", queue, "event_id", env.EventID, "attempts", attempts)
		c.quarantineAndAck(ctx, queue, d, "retry attempts exhausted")
		return
	}

	backoff := c.retryBackoff * time.Duration(1<<uint(attempts))
	c.log.Info("Scheduling retry",
		"queue", queue, "event_id", env.EventID,
		"attempt", attempts+1, "max_retries", c.maxRetries, "backoff", backoff)

	select {
	case <-ctx.Done():
		// Processing window expired mid-backoff; let the broker redeliver.
		if err := d.Nack(false, true); err != nil {
			c.log.Error("Failed to nack message", "queue", queue, "event_id", env.EventID, "error", err)
		}
		return
	case <-time.After(backoff):
	}

	headers := amqp.Table{attemptsHeader: int32(attempts + 1)}
	if err := c.broker.Publish(ctx, queue, env.EventID, headers, d.Body); err != nil {
		c.log.Error("Failed to republish for retry",
			"queue", queue, "event_id", env.EventID, "error", err)
		if err := d.Nack(false, true); err != nil {
			c.log.Error("Failed to nack message", "queue", queue, "event_id", env.EventID, "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.log.Error("Failed to ack retried message", "queue", queue, "event_id", env.EventID, "error", err)
	}
}

func (c *Consumer) quarantineAndAck(ctx context.Context, queue string, d amqp.Delivery, reason string) {
	if err := c.deadLetters.Quarantine(ctx, queue, d.Body, reason); err != nil {
		c.log.Error("Failed to quarantine message; requeueing",
			"queue", queue, "error", err)
		if err := d.Nack(false, true); err != nil {
			c.log.Error("Failed to nack message", "queue", queue, "error", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.log.Error("Failed to ack quarantined message", "queue", queue, "error", err)
	}
}

func attemptCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[attemptsHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
