package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
        id            VARCHAR(64)  PRIMARY KEY,
        seller        VARCHAR(255) NOT NULL,
        auction_end   DATETIME(6)  NOT NULL,
        reserve_price BIGINT       NOT NULL DEFAULT 0,
        finished      TINYINT(1)   NOT NULL DEFAULT 0,
        high_bid      BIGINT       NOT NULL DEFAULT 0,
        high_bidder   VARCHAR(255) NOT NULL DEFAULT '',
        created_at    DATETIME(6)  NOT NULL,
        updated_at    DATETIME(6)  NOT NULL,
        INDEX idx_auctions_due (finished, auction_end)
    )`,
	`CREATE TABLE IF NOT EXISTS bids (
        id         VARCHAR(64)  PRIMARY KEY,
        auction_id VARCHAR(64)  NOT NULL,
        bidder     VARCHAR(255) NOT NULL,
        amount     BIGINT       NOT NULL,
        placed_at  DATETIME(6)  NOT NULL,
        INDEX idx_bids_auction (auction_id, placed_at)
    )`,
	`CREATE TABLE IF NOT EXISTS processed_events (
        event_id     VARCHAR(64) PRIMARY KEY,
        processed_at DATETIME(6) NOT NULL
    )`,
}

// EnsureSchema creates the service's tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
