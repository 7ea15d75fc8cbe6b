package services

import (
	"context"
	"time"

	"bidding-service/internal/domain"
	"bidding-service/pkg/logger"
)

// MaintainLeadership re-attempts the finalizer lease until ctx is cancelled.
// It must stop before leadership is released on shutdown, otherwise the loop
// can re-acquire the lease the shutdown just gave up.
func MaintainLeadership(ctx context.Context, election domain.LeaderElection, instanceID string, interval time.Duration, log logger.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	for {
		became, err := election.BecomeLeader(ctx, instanceID)
		if err != nil {
			log.Error("Failed to attempt leadership", "error", err)
		} else if became {
			log.Info("Became finalizer leader", "instance_id", instanceID)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
