package service

import (
	"context"
)

// TransferLeg is one recipient of a hold conversion. Finalization splits the
// held amount into the seller's net proceeds and the fee recipients.
type TransferLeg struct {
	Account string
	Amount  float64
}

// LedgerClient abstracts the token-custody layer that actually moves
// balances. Operations are atomic per account; the engine calls them from
// inside the listing's critical section so "funds held" and "listing state"
// stay consistent.
type LedgerClient interface {
	CheckBalance(ctx context.Context, account string, amount float64, currency string) (bool, error)

	// Hold reserves funds against an account under the caller-supplied
	// hold id, which the caller records durably before calling, so a
	// crash mid-hold always leaves a reference to release from. Holding
	// an id that is already active is a no-op; ids are never reused
	// after release or capture. Fails with an InsufficientFunds error
	// when the available balance does not cover the amount.
	Hold(ctx context.Context, holdID, account string, amount float64, currency string) error

	// Release frees a hold back to its owner. Releasing an already
	// released hold is a no-op, so crash-safe retries are harmless.
	Release(ctx context.Context, holdID string) error

	// Transfer converts a hold into balance movements to the given legs.
	// The legs must sum to the held amount. Idempotent per hold: calling
	// it again for an already converted hold returns the original
	// transaction id, so a resumed finalize never double-charges.
	Transfer(ctx context.Context, holdID string, legs []TransferLeg) (string, error)
}
