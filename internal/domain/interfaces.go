package domain

import (
	"context"
	"time"
)

// Decision is the explicit acknowledgment contract between an event handler
// and the delivery channel. Success, transient failure, bounded retry and
// permanent rejection are distinct return states, never exceptions.
type Decision int

const (
	// Ack : the effect was applied (or was a legitimate no-op); commit the message.
	Ack Decision = iota
	// Requeue : transient dependency failure; hand the message back so the
	// broker redelivers it.
	Requeue
	// Retry : the message arrived ahead of state it depends on; retry with
	// backoff up to a bounded number of attempts, then dead-letter.
	Retry
	// DeadLetter : permanently unprocessable; quarantine for inspection.
	DeadLetter
)

func (d Decision) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// EventHandler applies one event type's local-state mutation at most once per
// logical event.
type EventHandler func(ctx context.Context, env *Envelope) Decision

// Store interfaces

// AuctionStore is the single shared mutable resource. All transitions on one
// auction id are applied atomically; concurrent bids on the same auction
// serialize through ApplyBid.
type AuctionStore interface {
	// UpsertIfAbsent inserts the auction unless a row with its id already
	// exists. Returns false with no error on the duplicate; redelivered
	// create events are a successful no-op.
	UpsertIfAbsent(ctx context.Context, auction *Auction) (bool, error)
	Get(ctx context.Context, auctionID string) (*Auction, error)
	// ApplyBid atomically checks not-finished, deadline and amount before
	// committing a new high bid. Rejections come back as a BidOutcome, not
	// an error.
	ApplyBid(ctx context.Context, auctionID, bidder string, amount int64, submittedAt time.Time) (BidOutcome, *Auction, error)
	// MarkFinished is idempotent; finishing a finished auction is a no-op.
	MarkFinished(ctx context.Context, auctionID string) error
	// ListDue returns unfinished auctions whose end time has passed.
	ListDue(ctx context.Context, now time.Time) ([]*Auction, error)
}

// BidRepository reads the bid trail. Writes happen inside AuctionStore.ApplyBid
// so they commit in the same transaction as the high-bid update.
type BidRepository interface {
	GetBidHistory(ctx context.Context, auctionID string) ([]*Bid, error)
}

// ProcessedEventStore deduplicates events whose application is not naturally
// idempotent. MarkProcessed must itself be safe to call twice.
type ProcessedEventStore interface {
	MarkProcessed(ctx context.Context, eventID string) error
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

// Event interfaces

type EventPublisher interface {
	PublishBidPlaced(ctx context.Context, event *BidPlacedEvent) error
	PublishAuctionFinished(ctx context.Context, event *AuctionFinishedEvent) error
}

// DeadLetterSink quarantines unprocessable messages outside the retry path.
type DeadLetterSink interface {
	Quarantine(ctx context.Context, queue string, body []byte, reason string) error
}

// Cache interfaces

type AuctionStateCache interface {
	SetAuctionState(ctx context.Context, auctionID string, state AuctionState) error
	GetAuctionState(ctx context.Context, auctionID string) (AuctionState, error)
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Notification interfaces

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// WebSocket interfaces

type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
