package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"bidding-service/pkg/logger"
)

// Broker owns the process-wide RabbitMQ connection and channel. It is opened
// once on startup and closed after in-flight deliveries have drained.
type Broker struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     logger.Logger
}

func NewBroker(url string, log logger.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	log.Info("Connected to RabbitMQ")

	return &Broker{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// DeclareQueue creates a durable queue if it doesn't exist.
func (b *Broker) DeclareQueue(name string) error {
	_, err := b.channel.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends a message to a queue. The key partitions consumers by
// auction id so related events stay ordered.
func (b *Broker) Publish(ctx context.Context, queue, key string, headers amqp.Table, body []byte) error {
	err := b.channel.PublishWithContext(ctx,
		"",    // exchange
		queue, // routing key (queue name)
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    key,
			Headers:      headers,
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// Consume opens a manually-acknowledged delivery stream for a queue.
// prefetch bounds the number of unacknowledged deliveries in flight.
func (b *Broker) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := b.channel.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := b.channel.Consume(
		queue, // queue name
		"",    // consumer tag
		false, // auto-ack (false = manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	b.log.Info("Listening on queue", "queue", queue)
	return deliveries, nil
}

// Close stops the channel first so no new deliveries arrive, then the
// connection.
func (b *Broker) Close() {
	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		b.conn.Close()
	}
}
