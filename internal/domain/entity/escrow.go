package entity

import (
	"time"
)

type EscrowHoldStatus string

const (
	// EscrowHoldPending is the durable intent written before the ledger
	// hold is placed. A pending record whose ledger hold never landed is
	// closed out by the next release pass.
	EscrowHoldPending EscrowHoldStatus = "pending"
	EscrowHoldActive  EscrowHoldStatus = "active"
	// EscrowHoldReleased means the funds went back to the bidder, either
	// because a higher bid superseded the hold or the auction did not sell.
	EscrowHoldReleased EscrowHoldStatus = "released"
	// EscrowHoldCaptured means the hold was converted into the settlement
	// transfer.
	EscrowHoldCaptured EscrowHoldStatus = "captured"
)

// EscrowHold is the durable record of funds provisionally reserved against a
// bidder. In-memory escrow bookkeeping is always a projection of these
// records; after a crash the required release or transfer is re-derived from
// them, keyed by the ledger hold id.
type EscrowHold struct {
	ID           string           `json:"id" firestore:"id"`
	ListingID    string           `json:"listing_id" firestore:"listingId"`
	BidderID     string           `json:"bidder_id" firestore:"bidderId"`
	Amount       float64          `json:"amount" firestore:"amount"`
	Currency     string           `json:"currency" firestore:"currency"`
	LedgerHoldID string           `json:"ledger_hold_id" firestore:"ledgerHoldId"`
	Status       EscrowHoldStatus `json:"status" firestore:"status"`
	CreatedAt    time.Time        `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time        `json:"updated_at" firestore:"updatedAt"`
}
