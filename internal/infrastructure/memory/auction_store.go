package memory

import (
	"context"
	"sync"
	"time"

	"bidding-service/internal/domain"
	"bidding-service/pkg/utils"
)

// MemoryAuctionStore keeps the auction projection in process memory. It is
// used by tests and local development; the mutex gives it the same per-id
// serialization guarantee the MySQL row lock provides.
type MemoryAuctionStore struct {
	mu            sync.Mutex
	auctions      map[string]*domain.Auction
	bids          map[string][]*domain.Bid
	minOpeningBid int64
}

func NewMemoryAuctionStore(minOpeningBid int64) *MemoryAuctionStore {
	return &MemoryAuctionStore{
		auctions:      make(map[string]*domain.Auction),
		bids:          make(map[string][]*domain.Bid),
		minOpeningBid: minOpeningBid,
	}
}

func (s *MemoryAuctionStore) UpsertIfAbsent(ctx context.Context, auction *domain.Auction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return false, nil
	}

	now := time.Now()
	stored := *auction
	stored.Finished = false
	stored.HighBid = 0
	stored.HighBidder = ""
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.auctions[auction.ID] = &stored
	return true, nil
}

func (s *MemoryAuctionStore) Get(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, exists := s.auctions[auctionID]
	if !exists {
		return nil, domain.ErrAuctionNotFound
	}
	copied := *auction
	return &copied, nil
}

func (s *MemoryAuctionStore) ApplyBid(ctx context.Context, auctionID, bidder string, amount int64, submittedAt time.Time) (domain.BidOutcome, *domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, exists := s.auctions[auctionID]
	if !exists {
		return domain.BidRejectedNotFound, nil, nil
	}

	outcome := domain.EvaluateBid(auction, amount, submittedAt, s.minOpeningBid)
	if outcome != domain.BidAccepted {
		copied := *auction
		return outcome, &copied, nil
	}

	auction.HighBid = amount
	auction.HighBidder = bidder
	auction.UpdatedAt = time.Now()
	s.bids[auctionID] = append(s.bids[auctionID], &domain.Bid{
		ID:        utils.GenerateID("bid"),
		AuctionID: auctionID,
		Bidder:    bidder,
		Amount:    amount,
		PlacedAt:  submittedAt,
	})

	copied := *auction
	return domain.BidAccepted, &copied, nil
}

func (s *MemoryAuctionStore) MarkFinished(ctx context.Context, auctionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auction, exists := s.auctions[auctionID]
	if !exists {
		return domain.ErrAuctionNotFound
	}
	// Already finished is a no-op success.
	auction.Finished = true
	auction.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryAuctionStore) ListDue(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Auction
	for _, auction := range s.auctions {
		if !auction.Finished && !now.Before(auction.AuctionEnd) {
			copied := *auction
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (s *MemoryAuctionStore) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.bids[auctionID]
	copied := make([]*domain.Bid, len(history))
	copy(copied, history)
	return copied, nil
}
