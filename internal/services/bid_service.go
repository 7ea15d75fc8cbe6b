package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

// BidService evaluates bids against the local projection. The HTTP API and
// the bid.requested consumer both resolve to ApplyBid on the store, which is
// where same-auction attempts serialize.
type BidService struct {
	store       domain.AuctionStore
	bidRepo     domain.BidRepository
	processed   domain.ProcessedEventStore
	eventPub    domain.EventPublisher
	broadcaster domain.AuctionBroadcaster
	stateCache  domain.AuctionStateCache
	log         logger.Logger
}

func NewBidService(
	store domain.AuctionStore,
	bidRepo domain.BidRepository,
	processed domain.ProcessedEventStore,
	eventPub domain.EventPublisher,
	broadcaster domain.AuctionBroadcaster,
	stateCache domain.AuctionStateCache,
	log logger.Logger,
) *BidService {
	return &BidService{
		store:       store,
		bidRepo:     bidRepo,
		processed:   processed,
		eventPub:    eventPub,
		broadcaster: broadcaster,
		stateCache:  stateCache,
		log:         log,
	}
}

// PlaceBid applies one bid and reacts to the outcome: accepted bids are
// announced downstream, a deadline rejection flags the auction as closing for
// the fast read path.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidder string, amount int64, submittedAt time.Time) (domain.BidOutcome, *domain.Auction, error) {
	outcome, auction, err := s.store.ApplyBid(ctx, auctionID, bidder, amount, submittedAt)
	if err != nil {
		return outcome, nil, fmt.Errorf("apply bid on %s: %w", auctionID, err)
	}

	switch outcome {
	case domain.BidAccepted:
		s.announceBid(ctx, auction, bidder, amount, submittedAt)
	case domain.BidRejectedExpired:
		// The bid noticed the deadline before the sweep did.
		if err := s.stateCache.SetAuctionState(ctx, auctionID, domain.AuctionClosing); err != nil {
			s.log.Warn("Failed to cache closing state", "auction_id", auctionID, "error", err)
		}
	}

	s.log.Info("Bid evaluated",
		"auction_id", auctionID, "bidder", bidder, "amount", amount,
		"outcome", outcome.String())
	return outcome, auction, nil
}

func (s *BidService) announceBid(ctx context.Context, auction *domain.Auction, bidder string, amount int64, submittedAt time.Time) {
	event := &domain.BidPlacedEvent{
		AuctionID:  auction.ID,
		Bidder:     bidder,
		Amount:     amount,
		AcceptedAt: submittedAt,
	}
	if err := s.eventPub.PublishBidPlaced(ctx, event); err != nil {
		// The bid is durable; the announcement is best effort.
		s.log.Error("Failed to publish bid placed event",
			"auction_id", auction.ID, "error", err)
	}

	if err := s.broadcaster.BroadcastToAuction(ctx, auction.ID, map[string]interface{}{
		"type":        domain.EventBidPlaced,
		"auction_id":  auction.ID,
		"bidder":      bidder,
		"amount":      amount,
		"accepted_at": submittedAt,
	}); err != nil {
		s.log.Warn("Failed to broadcast bid", "auction_id", auction.ID, "error", err)
	}
}

// HandleBidRequested consumes bid.requested events. Bid application is not
// naturally idempotent, so deliveries are filtered through the processed-event
// store, and a bid that outran its auction's created event is retried rather
// than discarded.
func (s *BidService) HandleBidRequested(ctx context.Context, env *domain.Envelope) domain.Decision {
	var event domain.BidRequestedEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		s.log.Error("Malformed bid requested payload",
			"event_id", env.EventID, "payload", string(env.Payload), "error", err)
		return domain.DeadLetter
	}

	if err := event.Validate(); err != nil {
		s.log.Error("Invalid bid requested event",
			"event_id", env.EventID, "payload", string(env.Payload), "error", err)
		return domain.DeadLetter
	}

	// Fast path: the finished state is cached only after the durable
	// MarkFinished, so a cache hit here never rejects a live auction. Skips
	// both MySQL round trips for bids against long-closed auctions.
	if state, err := s.stateCache.GetAuctionState(ctx, event.AuctionID); err == nil && state == domain.AuctionFinishedState {
		s.log.Info("Dropping bid for finished auction",
			"event_id", env.EventID, "auction_id", event.AuctionID)
		return domain.Ack
	}

	done, err := s.processed.IsProcessed(ctx, env.EventID)
	if err != nil {
		s.log.Error("Failed to check event dedup", "event_id", env.EventID, "error", err)
		return domain.Requeue
	}
	if done {
		s.log.Info("Bid event already processed, ignoring redelivery",
			"event_id", env.EventID, "auction_id", event.AuctionID)
		return domain.Ack
	}

	outcome, _, err := s.PlaceBid(ctx, event.AuctionID, event.Bidder, event.Amount, event.SubmittedAt)
	if err != nil {
		return domain.Requeue
	}
	if outcome == domain.BidRejectedNotFound {
		// Ordering gap: the auction.created event has not landed yet.
		s.log.Warn("Bid arrived before auction projection",
			"event_id", env.EventID, "auction_id", event.AuctionID)
		return domain.Retry
	}

	if err := s.processed.MarkProcessed(ctx, env.EventID); err != nil {
		// Redelivery re-applies the bid, but an equal amount never beats the
		// recorded high bid, so the retry converges.
		s.log.Error("Failed to mark event processed", "event_id", env.EventID, "error", err)
		return domain.Requeue
	}

	return domain.Ack
}

func (s *BidService) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	auction, err := s.store.Get(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return auction, nil
}

func (s *BidService) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := s.store.Get(ctx, auctionID); err != nil {
		return nil, err
	}
	return s.bidRepo.GetBidHistory(ctx, auctionID)
}
