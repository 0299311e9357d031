package usecase

import (
	"context"
	"time"

	"tradepost/internal/domain/service"
	"tradepost/pkg/logger"
)

// publishEvent fires an event at the sink. Delivery is best-effort; a
// failure is logged and never surfaced as the operation's failure.
func publishEvent(ctx context.Context, publisher service.EventPublisher, eventType, listingID, actorID string, payload map[string]interface{}) {
	if publisher == nil {
		return
	}

	event := service.Event{
		Type:       eventType,
		ListingID:  listingID,
		ActorID:    actorID,
		Payload:    payload,
		OccurredAt: time.Now(),
	}

	if err := publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish %s event for listing %s: %v", eventType, listingID, err)
	}
}
