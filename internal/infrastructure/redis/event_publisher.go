package redis

import (
	"context"
	"encoding/json"

	"auction-worker/internal/domain"

	"github.com/go-redis/redis/v8"
)

func EventChannel(auctionID string) string {
	return "auction_events:" + auctionID
}

type EventPublisher struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisher {
	return &EventPublisher{client: client}
}

func (r *EventPublisher) PublishDocumentEvent(ctx context.Context, event *domain.DocumentEvent) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, EventChannel(event.AuctionID), eventData).Err()
}
