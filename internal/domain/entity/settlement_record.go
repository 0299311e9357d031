package entity

import (
	"time"
)

// SettlementRecord is the append-only ledger entry produced whenever money
// changes hands. For sales the record id is the listing id, which makes a
// retried finalize a no-op; for rental payments it is the contract id (plus
// a renewal suffix). Records are never mutated after creation except for
// the bundle item-transfer progress fields.
type SettlementRecord struct {
	ID         string      `json:"id" firestore:"id"`
	ListingID  string      `json:"listing_id" firestore:"listingId"`
	Kind       ListingKind `json:"kind" firestore:"kind"`
	SellerID   string      `json:"seller_id" firestore:"sellerId"`
	BuyerID    string      `json:"buyer_id" firestore:"buyerId"`
	Price      float64     `json:"price" firestore:"price"`
	Currency   string      `json:"currency" firestore:"currency"`
	Fees       FeeBreakdown `json:"fees" firestore:"fees"`
	// SellerProceeds is Price minus Fees.Total.
	SellerProceeds float64 `json:"seller_proceeds" firestore:"sellerProceeds"`

	// LedgerTxID is set once the ledger transfer went through; a resumed
	// finalize with a set tx id never charges again.
	LedgerTxID string `json:"ledger_tx_id,omitempty" firestore:"ledgerTxId,omitempty"`

	// ItemsTransferred tracks bundle ownership handover progress so a
	// partial failure can be retried per item without re-charging.
	ItemsTransferred []string `json:"items_transferred,omitempty" firestore:"itemsTransferred,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

// HasTransferred reports whether the item already changed owner under this
// settlement.
func (s *SettlementRecord) HasTransferred(itemID string) bool {
	for _, id := range s.ItemsTransferred {
		if id == itemID {
			return true
		}
	}
	return false
}
