package services

import (
	"context"
	"encoding/json"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

// AuctionProjector materializes the local auction read model from upstream
// auction.created events. The projection's primary key is the event's own id,
// which makes redelivered events a structural no-op.
type AuctionProjector struct {
	store      domain.AuctionStore
	stateCache domain.AuctionStateCache
	log        logger.Logger
}

func NewAuctionProjector(store domain.AuctionStore, stateCache domain.AuctionStateCache, log logger.Logger) *AuctionProjector {
	return &AuctionProjector{
		store:      store,
		stateCache: stateCache,
		log:        log,
	}
}

// HandleAuctionCreated applies one auction.created event at most once.
func (p *AuctionProjector) HandleAuctionCreated(ctx context.Context, env *domain.Envelope) domain.Decision {
	var event domain.AuctionCreatedEvent
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		p.log.Error("Malformed auction created payload",
			"event_id", env.EventID, "payload", string(env.Payload), "error", err)
		return domain.DeadLetter
	}

	if err := event.Validate(); err != nil {
		p.log.Error("Invalid auction created event",
			"event_id", env.EventID, "payload", string(env.Payload), "error", err)
		return domain.DeadLetter
	}

	auction := &domain.Auction{
		ID:           event.ID,
		Seller:       event.Seller,
		AuctionEnd:   event.AuctionEnd,
		ReservePrice: event.ReservePrice,
	}

	created, err := p.store.UpsertIfAbsent(ctx, auction)
	if err != nil {
		p.log.Error("Failed to persist auction projection",
			"auction_id", event.ID, "error", err)
		return domain.Requeue
	}

	if !created {
		p.log.Info("Auction already projected, ignoring redelivery",
			"auction_id", event.ID, "event_id", env.EventID)
		return domain.Ack
	}

	// Cache failures don't fail the event; the store is the source of truth.
	if err := p.stateCache.SetAuctionState(ctx, event.ID, domain.AuctionOpen); err != nil {
		p.log.Warn("Failed to cache auction state", "auction_id", event.ID, "error", err)
	}

	p.log.Info("Auction projected",
		"auction_id", event.ID, "seller", event.Seller,
		"auction_end", event.AuctionEnd, "reserve_price", event.ReservePrice)
	return domain.Ack
}
