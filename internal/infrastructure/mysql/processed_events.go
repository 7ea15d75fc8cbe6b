package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MySQLProcessedEventStore records event ids whose effects have been applied.
// Bid application is not naturally idempotent, so redeliveries of the same
// logical event are filtered through this table.
type MySQLProcessedEventStore struct {
	db *sql.DB
}

func NewMySQLProcessedEventStore(db *sql.DB) *MySQLProcessedEventStore {
	return &MySQLProcessedEventStore{db: db}
}

func (r *MySQLProcessedEventStore) MarkProcessed(ctx context.Context, eventID string) error {
	// INSERT IGNORE keeps MarkProcessed itself idempotent.
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		eventID, time.Now())
	if err != nil {
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	return nil
}

func (r *MySQLProcessedEventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_events WHERE event_id = ?`, eventID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
