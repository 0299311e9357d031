package repository

import (
	"context"

	"tradepost/internal/domain/entity"
)

type EscrowRepository interface {
	Create(ctx context.Context, hold *entity.EscrowHold) error

	GetByID(ctx context.Context, id string) (*entity.EscrowHold, error)

	// ListOpenByListing returns every hold still awaiting resolution for a
	// listing: ACTIVE holds plus PENDING records whose ledger hold may or
	// may not have landed before a crash. At most one hold per non-winning
	// bidder plus the winner's hold should exist; finalization re-verifies
	// this when it releases them.
	ListOpenByListing(ctx context.Context, listingID string) ([]*entity.EscrowHold, error)

	Update(ctx context.Context, hold *entity.EscrowHold) error
}
