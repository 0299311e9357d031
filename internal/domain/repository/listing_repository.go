package repository

import (
	"context"
	"time"

	"tradepost/internal/domain/entity"
)

type ListingRepository interface {
	// Create persists a new listing and claims the item index entries for
	// every item it covers, all-or-nothing. It fails with a Conflict error
	// when any item already has an ACTIVE listing.
	Create(ctx context.Context, listing *entity.Listing) error

	GetByID(ctx context.Context, id string) (*entity.Listing, error)

	// UpdateActive writes the listing back only if its stored status is
	// still ACTIVE, so a bid can never land on a listing the scheduler has
	// started finalizing. Fails with a Conflict error otherwise.
	UpdateActive(ctx context.Context, listing *entity.Listing) error

	// Transition writes the listing with its new status, guarded by a
	// compare-and-set against `from` on the stored document. When `to` is
	// terminal the item index entries are released in the same write.
	Transition(ctx context.Context, listing *entity.Listing, from, to entity.ListingStatus) error

	List(ctx context.Context, filter map[string]interface{}, limit, offset int) ([]*entity.Listing, int64, error)

	// ListDueAuctions returns ACTIVE auctions whose end time has elapsed.
	ListDueAuctions(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error)

	// ListFinalizing returns listings stuck in the finalizing marker since
	// before `olderThan`, for crash recovery.
	ListFinalizing(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Listing, error)

	// ListRentalsDue returns ACTIVE rental listings with at least one
	// contract ending at or before `now`.
	ListRentalsDue(ctx context.Context, now time.Time, limit int) ([]*entity.Listing, error)
}
