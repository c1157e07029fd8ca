package websocket

import (
	"context"

	"auction-worker/internal/domain"
)

// WebSocketNotifier forwards document events to feed subscribers.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
}

func NewWebSocketNotifier(connManager domain.ConnectionManager) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager}
}

func (n *WebSocketNotifier) PublishDocumentEvent(ctx context.Context, event *domain.DocumentEvent) error {
	return n.connManager.BroadcastToAuction(event.AuctionID, event)
}

// HandleEvent matches the Redis subscriber's handler signature.
func (n *WebSocketNotifier) HandleEvent(event *domain.DocumentEvent) error {
	return n.connManager.BroadcastToAuction(event.AuctionID, event)
}
