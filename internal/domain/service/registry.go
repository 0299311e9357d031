package service

import (
	"context"
	"time"
)

// OwnershipRegistry is the external registry of record for item ownership
// and temporary-use rights.
type OwnershipRegistry interface {
	OwnerOf(ctx context.Context, itemID string) (string, error)

	// TransferOwnership is idempotent: transferring an item that already
	// belongs to toOwner succeeds without effect, which is what lets a
	// bundle settlement retry the remaining items.
	TransferOwnership(ctx context.Context, itemID, fromOwner, toOwner string) error

	GrantTemporaryUse(ctx context.Context, itemID, userID string, until time.Time) error

	RevokeTemporaryUse(ctx context.Context, itemID, userID string) error
}
