package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"auction-worker/internal/domain"
	"auction-worker/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type EventHandler func(event *domain.DocumentEvent) error

// EventSubscriber relays document events written by any process, including
// one-off cancel/reschedule commands, to an in-process handler.
type EventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewEventSubscriber(client *redis.Client, log logger.Logger) *EventSubscriber {
	return &EventSubscriber{
		client: client,
		log:    log,
	}
}

func (r *EventSubscriber) SubscribeToDocumentEvents(ctx context.Context, auctionID string, handler EventHandler) error {
	pubsub := r.client.Subscribe(ctx, EventChannel(auctionID))
	defer pubsub.Close()

	ch := pubsub.Channel()

	r.log.Info("Subscribed to auction events", "auction_id", auctionID)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := parseEventData(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func parseEventData(payload string) (*domain.DocumentEvent, error) {
	var event domain.DocumentEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event format: %w", err)
	}
	if event.AuctionID == "" || event.Type == "" {
		return nil, fmt.Errorf("invalid event format: %s", payload)
	}
	return &event, nil
}
