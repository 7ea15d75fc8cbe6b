package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"bidding-service/internal/domain"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (nopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Fatal(msg string, keysAndValues ...interface{}) {}

type recordingAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued bool
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeued = requeue
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return nil
}

type recordingSink struct {
	mu      sync.Mutex
	bodies  [][]byte
	reasons []string
	err     error
}

func (s *recordingSink) Quarantine(ctx context.Context, queue string, body []byte, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.bodies = append(s.bodies, body)
	s.reasons = append(s.reasons, reason)
	return nil
}

const testMaxRetries = 3

func newTestConsumer(sink domain.DeadLetterSink) *Consumer {
	return NewConsumer(nil, sink, nopLogger{}, 1, testMaxRetries, time.Millisecond, time.Second)
}

func envelopeBody(t *testing.T, eventID string) []byte {
	t.Helper()
	body, err := json.Marshal(domain.Envelope{
		EventID:    eventID,
		EventType:  domain.EventBidRequested,
		OccurredAt: time.Now(),
		Payload:    json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return body
}

func delivery(ack *recordingAcknowledger, body []byte, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         body,
		Headers:      headers,
	}
}

func decisionHandler(decision domain.Decision) domain.EventHandler {
	return func(ctx context.Context, env *domain.Envelope) domain.Decision {
		return decision
	}
}

func TestAttemptCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{name: "nil_headers", headers: nil, want: 0},
		{name: "missing_header", headers: amqp.Table{}, want: 0},
		{name: "int32", headers: amqp.Table{attemptsHeader: int32(2)}, want: 2},
		{name: "int64", headers: amqp.Table{attemptsHeader: int64(4)}, want: 4},
		{name: "int", headers: amqp.Table{attemptsHeader: 7}, want: 7},
		{name: "unexpected_type", headers: amqp.Table{attemptsHeader: "3"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, attemptCount(tt.headers))
		})
	}
}

func TestProcessAcksOnAck(t *testing.T) {
	ack := &recordingAcknowledger{}
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	c.process(context.Background(), "q", delivery(ack, envelopeBody(t, "evt_1"), nil),
		decisionHandler(domain.Ack))

	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
	require.Empty(t, sink.reasons)
}

func TestProcessRequeuesOnRequeue(t *testing.T) {
	ack := &recordingAcknowledger{}
	c := newTestConsumer(&recordingSink{})

	c.process(context.Background(), "q", delivery(ack, envelopeBody(t, "evt_1"), nil),
		decisionHandler(domain.Requeue))

	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.True(t, ack.requeued)
}

func TestProcessQuarantinesOnDeadLetter(t *testing.T) {
	ack := &recordingAcknowledger{}
	sink := &recordingSink{}
	c := newTestConsumer(sink)
	body := envelopeBody(t, "evt_1")

	c.process(context.Background(), "q", delivery(ack, body, nil),
		decisionHandler(domain.DeadLetter))

	require.Equal(t, [][]byte{body}, sink.bodies)
	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
}

func TestProcessQuarantinesUndecodableBody(t *testing.T) {
	ack := &recordingAcknowledger{}
	sink := &recordingSink{}
	c := newTestConsumer(sink)

	handled := false
	c.process(context.Background(), "q", delivery(ack, []byte("not json"), nil),
		func(ctx context.Context, env *domain.Envelope) domain.Decision {
			handled = true
			return domain.Ack
		})

	require.False(t, handled)
	require.Len(t, sink.reasons, 1)
	require.Equal(t, 1, ack.acks)
}

func TestRetryExhaustionQuarantines(t *testing.T) {
	ack := &recordingAcknowledger{}
	sink := &recordingSink{}
	c := newTestConsumer(sink)
	body := envelopeBody(t, "evt_1")
	headers := amqp.Table{attemptsHeader: int32(testMaxRetries)}

	c.process(context.Background(), "q", delivery(ack, body, headers),
		decisionHandler(domain.Retry))

	require.Equal(t, []string{"retry attempts exhausted"}, sink.reasons)
	require.Equal(t, [][]byte{body}, sink.bodies)
	require.Equal(t, 1, ack.acks)
	require.Equal(t, 0, ack.nacks)
}

func TestQuarantineFailureRequeues(t *testing.T) {
	ack := &recordingAcknowledger{}
	sink := &recordingSink{err: errors.New("dead letter queue down")}
	c := newTestConsumer(sink)
	headers := amqp.Table{attemptsHeader: int32(testMaxRetries)}

	c.process(context.Background(), "q", delivery(ack, envelopeBody(t, "evt_1"), headers),
		decisionHandler(domain.Retry))

	require.Equal(t, 0, ack.acks)
	require.Equal(t, 1, ack.nacks)
	require.True(t, ack.requeued)
}
