package mysql

import (
	"context"
	"database/sql"

	"bidding-service/internal/domain"
)

type MySQLBidRepository struct {
	db *sql.DB
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

// GetBidHistory returns accepted bids ordered by submission time. Writes go
// through AuctionStore.ApplyBid so the high-bid update and the bid row land in
// one transaction.
func (r *MySQLBidRepository) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder, amount, placed_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY placed_at ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.Bidder, &bid.Amount, &bid.PlacedAt)
		if err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}

	return bids, rows.Err()
}
