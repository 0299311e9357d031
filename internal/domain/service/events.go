package service

import (
	"context"
	"time"
)

const (
	EventListingCreated   = "listing.created"
	EventListingCancelled = "listing.cancelled"
	EventListingSold      = "listing.sold"
	EventBidPlaced        = "bid.placed"
	EventAuctionCompleted = "auction.completed"
	EventAuctionExpired   = "auction.expired"
	EventRentalAccepted   = "rental.accepted"
	EventRentalEnded      = "rental.ended"
	EventBundlePurchased  = "bundle.purchased"
)

type Event struct {
	Type       string                 `json:"type"`
	ListingID  string                 `json:"listing_id"`
	ActorID    string                 `json:"actor_id,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// EventPublisher is fire-and-forget: publish failures are logged and never
// roll back or fail the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
