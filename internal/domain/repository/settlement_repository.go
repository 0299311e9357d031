package repository

import (
	"context"

	"tradepost/internal/domain/entity"
)

type SettlementRepository interface {
	// Create fails with a Conflict error when a record with the same id
	// already exists. Sale records are keyed by listing id, which is what
	// makes a retried finalize idempotent.
	Create(ctx context.Context, record *entity.SettlementRecord) error

	GetByID(ctx context.Context, id string) (*entity.SettlementRecord, error)

	// Update is only used to advance LedgerTxID and bundle transfer
	// progress; the monetary fields are never rewritten.
	Update(ctx context.Context, record *entity.SettlementRecord) error

	ListByListing(ctx context.Context, listingID string) ([]*entity.SettlementRecord, error)
}
