package domain

import (
	"time"
)

// Auction is this service's projection of an upstream listing. The ID is the
// upstream aggregate's identity, never generated locally; it is the join key
// across services. Amounts are integer minor units.
type Auction struct {
	ID           string
	Seller       string
	AuctionEnd   time.Time
	ReservePrice int64
	Finished     bool
	HighBid      int64
	HighBidder   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// State derives the lifecycle position from stored fields and the clock.
func (a *Auction) State(now time.Time) AuctionState {
	switch {
	case a.Finished:
		return AuctionFinishedState
	case !now.Before(a.AuctionEnd):
		return AuctionClosing
	default:
		return AuctionOpen
	}
}

// HasBid reports whether any bid has been accepted yet.
func (a *Auction) HasBid() bool {
	return a.HighBidder != ""
}

type AuctionState int

const (
	AuctionOpen AuctionState = iota
	AuctionClosing
	AuctionFinishedState
)

func (s AuctionState) String() string {
	switch s {
	case AuctionOpen:
		return "open"
	case AuctionClosing:
		return "closing"
	case AuctionFinishedState:
		return "finished"
	default:
		return "unknown"
	}
}

// Bid is immutable once accepted and belongs to exactly one auction.
type Bid struct {
	ID        string
	AuctionID string
	Bidder    string
	Amount    int64
	PlacedAt  time.Time
}

// BidOutcome is the typed result of a bid attempt. Rejections are normal
// business outcomes, not errors.
type BidOutcome int

const (
	// BidOutcomeUnknown is the zero value; stores return it only alongside a
	// non-nil error, never as a business result.
	BidOutcomeUnknown BidOutcome = iota
	BidAccepted
	BidRejectedTooLow
	BidRejectedExpired
	BidRejectedFinished
	BidRejectedNotFound
)

func (o BidOutcome) String() string {
	switch o {
	case BidAccepted:
		return "accepted"
	case BidRejectedTooLow:
		return "rejected_too_low"
	case BidRejectedExpired:
		return "rejected_expired"
	case BidRejectedFinished:
		return "rejected_finished"
	case BidRejectedNotFound:
		return "rejected_not_found"
	default:
		return "unknown"
	}
}

// Accepted reports whether the outcome committed a new high bid.
func (o BidOutcome) Accepted() bool {
	return o == BidAccepted
}

// EvaluateBid applies the acceptance rule every store implementation shares:
// the auction must not be finished, the deadline must not have passed, and the
// amount must strictly beat the current high bid (or reach the opening minimum
// when no bid exists yet).
func EvaluateBid(auction *Auction, amount int64, submittedAt time.Time, minOpeningBid int64) BidOutcome {
	switch {
	case auction.Finished:
		return BidRejectedFinished
	case !submittedAt.Before(auction.AuctionEnd):
		return BidRejectedExpired
	case auction.HasBid() && amount <= auction.HighBid:
		return BidRejectedTooLow
	case !auction.HasBid() && amount < minOpeningBid:
		return BidRejectedTooLow
	default:
		return BidAccepted
	}
}

// FinishResult records how an auction closed. ReserveMet distinguishes a sale
// from a close-out where the high bid never reached the reserve.
type FinishResult struct {
	AuctionID  string
	Winner     string
	Amount     int64
	ReserveMet bool
}
