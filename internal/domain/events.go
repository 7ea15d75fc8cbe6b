package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event type names carried in the envelope. Payload shapes are tagged
// variants keyed by these names; each has its own validated schema.
const (
	EventAuctionCreated  = "auction.created"
	EventBidRequested    = "bid.requested"
	EventBidPlaced       = "bid.placed"
	EventAuctionFinished = "auction.finished"
)

// Envelope is the wire frame shared by all events on the broker.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses the outer frame. Payload decoding is left to the
// per-type handlers.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventID == "" {
		return nil, &ValidationError{Field: "event_id", Reason: "missing"}
	}
	if env.EventType == "" {
		return nil, &ValidationError{Field: "event_type", Reason: "missing"}
	}
	return &env, nil
}

// AuctionCreatedEvent is published once by the upstream auction service when
// a listing goes live. It may be redelivered; consumers must absorb
// duplicates.
type AuctionCreatedEvent struct {
	ID           string    `json:"id"`
	Seller       string    `json:"seller"`
	AuctionEnd   time.Time `json:"auctionEnd"`
	ReservePrice int64     `json:"reservePrice"`
}

func (e *AuctionCreatedEvent) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: "id", Reason: "missing"}
	}
	if e.Seller == "" {
		return &ValidationError{Field: "seller", Reason: "missing"}
	}
	if e.AuctionEnd.IsZero() {
		return &ValidationError{Field: "auctionEnd", Reason: "missing"}
	}
	if e.ReservePrice < 0 {
		return &ValidationError{Field: "reservePrice", Reason: "negative"}
	}
	return nil
}

// BidRequestedEvent asks the bidding service to evaluate a bid. It can arrive
// before the auction's created event has been processed; that gap is retried,
// not discarded.
type BidRequestedEvent struct {
	AuctionID   string    `json:"auctionId"`
	Bidder      string    `json:"bidder"`
	Amount      int64     `json:"amount"`
	SubmittedAt time.Time `json:"submittedAt"`
}

func (e *BidRequestedEvent) Validate() error {
	if e.AuctionID == "" {
		return &ValidationError{Field: "auctionId", Reason: "missing"}
	}
	if e.Bidder == "" {
		return &ValidationError{Field: "bidder", Reason: "missing"}
	}
	if e.Amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "not positive"}
	}
	if e.SubmittedAt.IsZero() {
		return &ValidationError{Field: "submittedAt", Reason: "missing"}
	}
	return nil
}

// BidPlacedEvent is published after a bid has been durably accepted.
type BidPlacedEvent struct {
	AuctionID  string    `json:"auctionId"`
	Bidder     string    `json:"bidder"`
	Amount     int64     `json:"amount"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// AuctionFinishedEvent is published once the closing transition has durably
// completed. Winner and Amount are empty when no sale happened.
type AuctionFinishedEvent struct {
	ID         string `json:"id"`
	Winner     string `json:"winner,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	ReserveMet bool   `json:"reserveMet"`
}

// ValidationError marks a payload that fails schema validation. Such messages
// are dead-lettered, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: field %s %s", e.Field, e.Reason)
}
