package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

// Finalizer drives the closing transition: a periodic sweep finds auctions
// whose end time has passed, records the outcome and emits auction.finished.
// The sweep is leader-gated so one instance closes each auction exactly once;
// MarkFinished being idempotent covers leader handover races.
type Finalizer struct {
	store          domain.AuctionStore
	eventPub       domain.EventPublisher
	stateCache     domain.AuctionStateCache
	broadcaster    domain.AuctionBroadcaster
	connManager    domain.ConnectionManager
	leaderElection domain.LeaderElection
	instanceID     string
	interval       time.Duration
	cron           *cron.Cron
	log            logger.Logger
}

func NewFinalizer(
	store domain.AuctionStore,
	eventPub domain.EventPublisher,
	stateCache domain.AuctionStateCache,
	broadcaster domain.AuctionBroadcaster,
	connManager domain.ConnectionManager,
	leaderElection domain.LeaderElection,
	instanceID string,
	interval time.Duration,
	log logger.Logger,
) *Finalizer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Finalizer{
		store:          store,
		eventPub:       eventPub,
		stateCache:     stateCache,
		broadcaster:    broadcaster,
		connManager:    connManager,
		leaderElection: leaderElection,
		instanceID:     instanceID,
		interval:       interval,
		cron:           cron.New(cron.WithSeconds()),
		log:            log,
	}
}

func (f *Finalizer) Start(ctx context.Context) error {
	f.log.Info("Starting auction finalizer", "sweep_interval", f.interval)

	_, err := f.cron.AddFunc(fmt.Sprintf("@every %s", f.interval), func() {
		f.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	f.cron.Start()
	return nil
}

func (f *Finalizer) Stop() error {
	f.log.Info("Stopping auction finalizer")
	f.cron.Stop()
	return nil
}

// Sweep closes every due auction. Failures on one auction don't block the
// rest; the next sweep retries whatever is still unfinished.
func (f *Finalizer) Sweep(ctx context.Context) {
	isLeader, err := f.leaderElection.IsLeader(ctx, f.instanceID)
	if err != nil {
		f.log.Error("Failed to check leadership", "error", err)
		return
	}
	if !isLeader {
		return
	}

	due, err := f.store.ListDue(ctx, time.Now())
	if err != nil {
		f.log.Error("Failed to list due auctions", "error", err)
		return
	}

	for _, auction := range due {
		if err := f.Finalize(ctx, auction); err != nil {
			f.log.Error("Failed to finalize auction", "auction_id", auction.ID, "error", err)
		}
	}
}

// Finalize records the outcome of one due auction and publishes it. The
// durable MarkFinished happens before the publish; a crash in between means
// the event is re-emitted on the next sweep of a redelivered state, which
// downstream consumers absorb as a duplicate.
func (f *Finalizer) Finalize(ctx context.Context, auction *domain.Auction) error {
	// Close the door first. A bid submitted before the deadline can still be
	// accepted between the sweep's ListDue snapshot and this point; once the
	// row is finished no further bid lands, so the re-read below is the final
	// state and the settlement never misses a late winner.
	if err := f.store.MarkFinished(ctx, auction.ID); err != nil {
		return fmt.Errorf("mark finished: %w", err)
	}

	settled, err := f.store.Get(ctx, auction.ID)
	if err != nil {
		return fmt.Errorf("read finished auction: %w", err)
	}
	result := SettleAuction(settled)

	if err := f.stateCache.SetAuctionState(ctx, auction.ID, domain.AuctionFinishedState); err != nil {
		f.log.Warn("Failed to cache finished state", "auction_id", auction.ID, "error", err)
	}

	event := &domain.AuctionFinishedEvent{
		ID:         result.AuctionID,
		Winner:     result.Winner,
		Amount:     result.Amount,
		ReserveMet: result.ReserveMet,
	}
	if err := f.eventPub.PublishAuctionFinished(ctx, event); err != nil {
		return fmt.Errorf("publish finished event: %w", err)
	}

	if err := f.broadcaster.BroadcastToAuction(ctx, auction.ID, map[string]interface{}{
		"type":        domain.EventAuctionFinished,
		"auction_id":  result.AuctionID,
		"winner":      result.Winner,
		"amount":      result.Amount,
		"reserve_met": result.ReserveMet,
	}); err != nil {
		f.log.Warn("Failed to broadcast finish", "auction_id", auction.ID, "error", err)
	}

	// No further updates will come for this auction; drop its watchers.
	if err := f.connManager.CloseAndUnregisterConnections(auction.ID); err != nil {
		f.log.Warn("Failed to close auction watchers", "auction_id", auction.ID, "error", err)
	}

	f.log.Info("Auction finished",
		"auction_id", result.AuctionID, "winner", result.Winner,
		"amount", result.Amount, "reserve_met", result.ReserveMet)
	return nil
}

// SettleAuction decides the outcome of a closing auction. A winner exists only
// when at least one bid was accepted and the high bid reached the reserve;
// "reserve not met" and "no bids" both close without a sale.
func SettleAuction(auction *domain.Auction) domain.FinishResult {
	result := domain.FinishResult{AuctionID: auction.ID}

	if !auction.HasBid() {
		return result
	}

	result.ReserveMet = auction.HighBid >= auction.ReservePrice
	if result.ReserveMet {
		result.Winner = auction.HighBidder
		result.Amount = auction.HighBid
	}
	return result
}
