package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bidding-service/internal/domain"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Fatal(msg string, keysAndValues ...interface{}) {}

type fakePublisher struct {
	mu         sync.Mutex
	bidPlaced  []*domain.BidPlacedEvent
	finished   []*domain.AuctionFinishedEvent
	failBid    error
	failFinish error
}

func (p *fakePublisher) PublishBidPlaced(ctx context.Context, event *domain.BidPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failBid != nil {
		return p.failBid
	}
	p.bidPlaced = append(p.bidPlaced, event)
	return nil
}

func (p *fakePublisher) PublishAuctionFinished(ctx context.Context, event *domain.AuctionFinishedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFinish != nil {
		return p.failFinish
	}
	p.finished = append(p.finished, event)
	return nil
}

func (p *fakePublisher) bidPlacedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bidPlaced)
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]interface{}
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{messages: make(map[string][]interface{})}
}

func (b *fakeBroadcaster) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[auctionID] = append(b.messages[auctionID], message)
	return nil
}

type fakeStateCache struct {
	mu     sync.Mutex
	states map[string]domain.AuctionState
}

func newFakeStateCache() *fakeStateCache {
	return &fakeStateCache{states: make(map[string]domain.AuctionState)}
}

func (c *fakeStateCache) SetAuctionState(ctx context.Context, auctionID string, state domain.AuctionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[auctionID] = state
	return nil
}

func (c *fakeStateCache) GetAuctionState(ctx context.Context, auctionID string) (domain.AuctionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[auctionID], nil
}

type fakeLeader struct {
	mu      sync.Mutex
	leader  bool
	becomes int
}

func (l *fakeLeader) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.becomes++
	return l.leader, nil
}

func (l *fakeLeader) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leader, nil
}

func (l *fakeLeader) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}

func (l *fakeLeader) setLeader(leader bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leader = leader
}

func (l *fakeLeader) becomeCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.becomes
}

type fakeConnManager struct {
	mu     sync.Mutex
	closed []string
}

func (m *fakeConnManager) RegisterConnection(userID, auctionID string, conn domain.WebSocketConnection) error {
	return nil
}

func (m *fakeConnManager) UnregisterConnection(userID, auctionID string) error {
	return nil
}

func (m *fakeConnManager) GetConnectionsForAuction(auctionID string) []domain.WebSocketConnection {
	return nil
}

func (m *fakeConnManager) BroadcastToAuction(auctionID string, message interface{}) error {
	return nil
}

func (m *fakeConnManager) CloseAndUnregisterConnections(auctionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, auctionID)
	return nil
}

func (m *fakeConnManager) closedAuctions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}

// failingStore wraps a real store and injects an error into every mutation,
// simulating an unreachable database.
type failingStore struct {
	domain.AuctionStore
	err error
}

func (s *failingStore) UpsertIfAbsent(ctx context.Context, auction *domain.Auction) (bool, error) {
	return false, s.err
}

func (s *failingStore) ApplyBid(ctx context.Context, auctionID, bidder string, amount int64, submittedAt time.Time) (domain.BidOutcome, *domain.Auction, error) {
	return domain.BidOutcomeUnknown, nil, s.err
}

func makeEnvelope(t *testing.T, eventID, eventType string, payload interface{}) *domain.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &domain.Envelope{
		EventID:   eventID,
		EventType: eventType,
		Payload:   raw,
	}
}
