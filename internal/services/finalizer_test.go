package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bidding-service/internal/domain"
	"bidding-service/internal/infrastructure/memory"
)

func TestSettleAuction(t *testing.T) {
	tests := []struct {
		name    string
		auction domain.Auction
		want    domain.FinishResult
	}{
		{
			name:    "no_bids",
			auction: domain.Auction{ID: "a1", ReservePrice: 100},
			want:    domain.FinishResult{AuctionID: "a1"},
		},
		{
			name:    "reserve_not_met",
			auction: domain.Auction{ID: "a1", ReservePrice: 100, HighBid: 80, HighBidder: "bob"},
			want:    domain.FinishResult{AuctionID: "a1"},
		},
		{
			name:    "reserve_met",
			auction: domain.Auction{ID: "a1", ReservePrice: 100, HighBid: 120, HighBidder: "bob"},
			want:    domain.FinishResult{AuctionID: "a1", Winner: "bob", Amount: 120, ReserveMet: true},
		},
		{
			name:    "no_reserve",
			auction: domain.Auction{ID: "a1", HighBid: 5, HighBidder: "bob"},
			want:    domain.FinishResult{AuctionID: "a1", Winner: "bob", Amount: 5, ReserveMet: true},
		},
		{
			name:    "high_bid_equals_reserve",
			auction: domain.Auction{ID: "a1", ReservePrice: 100, HighBid: 100, HighBidder: "bob"},
			want:    domain.FinishResult{AuctionID: "a1", Winner: "bob", Amount: 100, ReserveMet: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SettleAuction(&tt.auction))
		})
	}
}

type finalizerFixture struct {
	store     *memory.MemoryAuctionStore
	publisher *fakePublisher
	cache     *fakeStateCache
	conns     *fakeConnManager
	leader    *fakeLeader
	finalizer *Finalizer
}

func newFinalizerFixture(leader bool) *finalizerFixture {
	store := memory.NewMemoryAuctionStore(1)
	publisher := &fakePublisher{}
	cache := newFakeStateCache()
	conns := &fakeConnManager{}
	l := &fakeLeader{leader: leader}
	return &finalizerFixture{
		store:     store,
		publisher: publisher,
		cache:     cache,
		conns:     conns,
		leader:    l,
		finalizer: NewFinalizer(store, publisher, cache, newFakeBroadcaster(), conns, l, "instance-1", time.Second, noopLogger{}),
	}
}

func (f *finalizerFixture) seedDueAuction(t *testing.T, id string, reserve, highBid int64) {
	t.Helper()
	ctx := context.Background()
	end := time.Now().Add(-time.Minute)
	created, err := f.store.UpsertIfAbsent(ctx, &domain.Auction{
		ID:           id,
		Seller:       "seller-1",
		AuctionEnd:   end,
		ReservePrice: reserve,
	})
	require.NoError(t, err)
	require.True(t, created)

	if highBid > 0 {
		outcome, _, err := f.store.ApplyBid(ctx, id, "bidder-1", highBid, end.Add(-time.Second))
		require.NoError(t, err)
		require.Equal(t, domain.BidAccepted, outcome)
	}
}

func TestSweepClosesDueAuctions(t *testing.T) {
	f := newFinalizerFixture(true)
	ctx := context.Background()
	f.seedDueAuction(t, "auction-1", 100, 120)
	f.seedDueAuction(t, "auction-2", 100, 80)

	f.finalizer.Sweep(ctx)

	for _, id := range []string{"auction-1", "auction-2"} {
		auction, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, auction.Finished)

		state, err := f.cache.GetAuctionState(ctx, id)
		require.NoError(t, err)
		require.Equal(t, domain.AuctionFinishedState, state)
	}

	require.Len(t, f.publisher.finished, 2)
	byID := make(map[string]*domain.AuctionFinishedEvent)
	for _, event := range f.publisher.finished {
		byID[event.ID] = event
	}
	require.Equal(t, "bidder-1", byID["auction-1"].Winner)
	require.Equal(t, int64(120), byID["auction-1"].Amount)
	require.True(t, byID["auction-1"].ReserveMet)
	require.Empty(t, byID["auction-2"].Winner)
	require.False(t, byID["auction-2"].ReserveMet)

	// Watchers of a finished auction are dropped.
	require.ElementsMatch(t, []string{"auction-1", "auction-2"}, f.conns.closedAuctions())
}

func TestFinalizeSettlesFromFreshRow(t *testing.T) {
	// A bid submitted before the deadline can land between the sweep's
	// snapshot and the finalize; the published result must reflect it.
	f := newFinalizerFixture(true)
	ctx := context.Background()
	end := time.Now().Add(-time.Minute)

	created, err := f.store.UpsertIfAbsent(ctx, &domain.Auction{
		ID:         "auction-1",
		Seller:     "seller-1",
		AuctionEnd: end,
	})
	require.NoError(t, err)
	require.True(t, created)

	stale, err := f.store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.False(t, stale.HasBid())

	outcome, _, err := f.store.ApplyBid(ctx, "auction-1", "late-bidder", 500, end.Add(-time.Second))
	require.NoError(t, err)
	require.Equal(t, domain.BidAccepted, outcome)

	require.NoError(t, f.finalizer.Finalize(ctx, stale))

	require.Len(t, f.publisher.finished, 1)
	event := f.publisher.finished[0]
	require.Equal(t, "late-bidder", event.Winner)
	require.Equal(t, int64(500), event.Amount)
	require.True(t, event.ReserveMet)
}

func TestSweepIsLeaderGated(t *testing.T) {
	f := newFinalizerFixture(false)
	ctx := context.Background()
	f.seedDueAuction(t, "auction-1", 0, 50)

	f.finalizer.Sweep(ctx)

	auction, err := f.store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.False(t, auction.Finished)
	require.Empty(t, f.publisher.finished)

	// Winning the election makes the next sweep pick the auction up.
	f.leader.setLeader(true)
	f.finalizer.Sweep(ctx)

	auction, err = f.store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, auction.Finished)
}

func TestSweepSkipsFutureAuctions(t *testing.T) {
	f := newFinalizerFixture(true)
	ctx := context.Background()

	created, err := f.store.UpsertIfAbsent(ctx, &domain.Auction{
		ID:         "auction-1",
		Seller:     "seller-1",
		AuctionEnd: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.True(t, created)

	f.finalizer.Sweep(ctx)

	auction, err := f.store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.False(t, auction.Finished)
	require.Empty(t, f.publisher.finished)
}

func TestFinalizeIsIdempotentAcrossSweeps(t *testing.T) {
	f := newFinalizerFixture(true)
	ctx := context.Background()
	f.seedDueAuction(t, "auction-1", 0, 50)

	f.finalizer.Sweep(ctx)
	require.Len(t, f.publisher.finished, 1)

	// A finished auction no longer shows up as due.
	f.finalizer.Sweep(ctx)
	require.Len(t, f.publisher.finished, 1)
}

func TestFinalizePublishFailureRetriesNextSweep(t *testing.T) {
	f := newFinalizerFixture(true)
	ctx := context.Background()
	f.seedDueAuction(t, "auction-1", 0, 50)

	auction, err := f.store.Get(ctx, "auction-1")
	require.NoError(t, err)

	f.publisher.failFinish = context.DeadlineExceeded
	require.Error(t, f.finalizer.Finalize(ctx, auction))

	// The state transition stuck even though the publish failed.
	closed, err := f.store.Get(ctx, "auction-1")
	require.NoError(t, err)
	require.True(t, closed.Finished)

	f.publisher.failFinish = nil
	require.NoError(t, f.finalizer.Finalize(ctx, auction))
	require.Len(t, f.publisher.finished, 1)
}
