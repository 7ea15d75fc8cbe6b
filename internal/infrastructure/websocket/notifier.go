package websocket

import (
	"bidding-service/internal/domain"
	"context"
)

// Notifier adapts the connection manager to the domain broadcaster interface.
type Notifier struct {
	connManager domain.ConnectionManager
}

func NewNotifier(connManager domain.ConnectionManager) *Notifier {
	return &Notifier{connManager: connManager}
}

func (n *Notifier) BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error {
	return n.connManager.BroadcastToAuction(auctionID, message)
}
