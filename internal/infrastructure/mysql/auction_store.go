package mysql

import (
	"bidding-service/internal/domain"
	"bidding-service/pkg/utils"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

type MySQLAuctionStore struct {
	db            *sql.DB
	minOpeningBid int64
}

func NewMySQLAuctionStore(db *sql.DB, minOpeningBid int64) *MySQLAuctionStore {
	return &MySQLAuctionStore{db: db, minOpeningBid: minOpeningBid}
}

// UpsertIfAbsent inserts the projection row keyed by the upstream auction id.
// A duplicate id is a successful no-op; that is what makes redelivered
// auction.created events harmless.
func (r *MySQLAuctionStore) UpsertIfAbsent(ctx context.Context, auction *domain.Auction) (bool, error) {
	query := `
        INSERT IGNORE INTO auctions
            (id, seller, auction_end, reserve_price, finished, high_bid, high_bidder, created_at, updated_at)
        VALUES (?, ?, ?, ?, 0, 0, '', ?, ?)
    `
	now := time.Now()
	res, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.Seller, auction.AuctionEnd, auction.ReservePrice, now, now)
	if err != nil {
		return false, fmt.Errorf("insert auction %s: %w", auction.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *MySQLAuctionStore) Get(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return scanAuction(r.db.QueryRowContext(ctx, selectAuction+` WHERE id = ?`, auctionID))
}

// ApplyBid serializes all bid attempts for one auction through a row lock and
// evaluates the acceptance rule inside the transaction. Exactly one of two
// simultaneous bids can win; the loser gets a rejection outcome, not an error.
func (r *MySQLAuctionStore) ApplyBid(ctx context.Context, auctionID, bidder string, amount int64, submittedAt time.Time) (domain.BidOutcome, *domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.BidOutcomeUnknown, nil, fmt.Errorf("begin bid tx: %w", err)
	}
	defer tx.Rollback()

	auction, err := scanAuction(tx.QueryRowContext(ctx, selectAuction+` WHERE id = ? FOR UPDATE`, auctionID))
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return domain.BidRejectedNotFound, nil, nil
		}
		return domain.BidOutcomeUnknown, nil, err
	}

	if outcome := domain.EvaluateBid(auction, amount, submittedAt, r.minOpeningBid); outcome != domain.BidAccepted {
		return outcome, auction, nil
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE auctions SET high_bid = ?, high_bidder = ?, updated_at = ? WHERE id = ?`,
		amount, bidder, now, auctionID); err != nil {
		return domain.BidOutcomeUnknown, nil, fmt.Errorf("update high bid for %s: %w", auctionID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder, amount, placed_at) VALUES (?, ?, ?, ?, ?)`,
		utils.GenerateID("bid"), auctionID, bidder, amount, submittedAt); err != nil {
		return domain.BidOutcomeUnknown, nil, fmt.Errorf("insert bid for %s: %w", auctionID, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.BidOutcomeUnknown, nil, fmt.Errorf("commit bid for %s: %w", auctionID, err)
	}

	auction.HighBid = amount
	auction.HighBidder = bidder
	auction.UpdatedAt = now
	return domain.BidAccepted, auction, nil
}

// MarkFinished is idempotent; finished never reverts to false.
func (r *MySQLAuctionStore) MarkFinished(ctx context.Context, auctionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET finished = 1, updated_at = ? WHERE id = ?`,
		time.Now(), auctionID)
	if err != nil {
		return fmt.Errorf("mark finished %s: %w", auctionID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either already finished (no-op success) or missing.
		var one int
		err := r.db.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, auctionID).Scan(&one)
		if err == sql.ErrNoRows {
			return domain.ErrAuctionNotFound
		}
		return err
	}
	return nil
}

func (r *MySQLAuctionStore) ListDue(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	rows, err := r.db.QueryContext(ctx, selectAuction+` WHERE finished = 0 AND auction_end <= ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

const selectAuction = `
        SELECT id, seller, auction_end, reserve_price, finished, high_bid, high_bidder, created_at, updated_at
        FROM auctions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	err := row.Scan(&auction.ID, &auction.Seller, &auction.AuctionEnd,
		&auction.ReservePrice, &auction.Finished, &auction.HighBid, &auction.HighBidder,
		&auction.CreatedAt, &auction.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &auction, nil
}
