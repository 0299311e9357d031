package entity

import (
	"time"
)

type ListingKind string

const (
	ListingKindFixedPrice ListingKind = "fixed_price"
	ListingKindAuction    ListingKind = "auction"
	ListingKindBundle     ListingKind = "bundle"
	ListingKindRental     ListingKind = "rental"
)

type ListingStatus string

const (
	// ListingStatusPending is a transient pre-activation state used during
	// bundle and rental setup validation.
	ListingStatusPending ListingStatus = "pending"
	ListingStatusActive  ListingStatus = "active"
	// ListingStatusFinalizing marks a listing whose settlement has begun.
	// It is durable: a crashed finalization is resumed by the sweep, never
	// restarted from scratch.
	ListingStatusFinalizing ListingStatus = "finalizing"
	ListingStatusCompleted  ListingStatus = "completed"
	ListingStatusCancelled  ListingStatus = "cancelled"
	ListingStatusExpired    ListingStatus = "expired"
)

// IsTerminal reports whether no further transition may leave the status.
func (s ListingStatus) IsTerminal() bool {
	return s == ListingStatusCompleted || s == ListingStatusCancelled || s == ListingStatusExpired
}

// Pricing carries the money fields for every listing kind. Fields that do
// not apply to the kind stay nil; zero is a valid price, so optional fields
// are pointers.
type Pricing struct {
	Currency string `json:"currency" firestore:"currency"`

	// Fixed-price and bundle listings.
	Price *float64 `json:"price,omitempty" firestore:"price,omitempty"`

	// Auction listings.
	MinimumBid   *float64 `json:"minimum_bid,omitempty" firestore:"minimumBid,omitempty"`
	ReservePrice *float64 `json:"reserve_price,omitempty" firestore:"reservePrice,omitempty"`
	BuyNowPrice  *float64 `json:"buy_now_price,omitempty" firestore:"buyNowPrice,omitempty"`

	// Bundle listings.
	BundleDiscountPct *float64 `json:"bundle_discount_pct,omitempty" firestore:"bundleDiscountPct,omitempty"`

	// Rental listings.
	RentalRatePerDay *float64 `json:"rental_rate_per_day,omitempty" firestore:"rentalRatePerDay,omitempty"`
}

type Bid struct {
	ID        string    `json:"id" firestore:"id"`
	BidderID  string    `json:"bidder_id" firestore:"bidderId"`
	Amount    float64   `json:"amount" firestore:"amount"`
	Currency  string    `json:"currency" firestore:"currency"`
	IsWinning bool      `json:"is_winning" firestore:"isWinning"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

type AuctionState struct {
	StartTime        time.Time     `json:"start_time" firestore:"startTime"`
	EndTime          time.Time     `json:"end_time" firestore:"endTime"`
	CurrentBid       float64       `json:"current_bid" firestore:"currentBid"`
	CurrentWinnerID  string        `json:"current_winner_id,omitempty" firestore:"currentWinnerId,omitempty"`
	BidCount         int           `json:"bid_count" firestore:"bidCount"`
	MinimumIncrement float64       `json:"minimum_increment" firestore:"minimumIncrement"`
	AutoExtend       bool          `json:"auto_extend" firestore:"autoExtend"`
	ExtensionWindow  time.Duration `json:"extension_window" firestore:"extensionWindow"`
	Bids             []Bid         `json:"bids" firestore:"bids"`
}

type RentalState struct {
	MinPeriodDays int              `json:"min_period_days" firestore:"minPeriodDays"`
	MaxPeriodDays int              `json:"max_period_days" firestore:"maxPeriodDays"`
	Contracts     []RentalContract `json:"contracts" firestore:"contracts"`
	TotalRevenue  float64          `json:"total_revenue" firestore:"totalRevenue"`
	// NextExpiry is the earliest end time among active contracts; the
	// expiry sweep queries on it instead of scanning embedded arrays.
	NextExpiry *time.Time `json:"next_expiry,omitempty" firestore:"nextExpiry,omitempty"`
}

type FeeBreakdown struct {
	Platform float64 `json:"platform" firestore:"platform"`
	Royalty  float64 `json:"royalty" firestore:"royalty"`
	Service  float64 `json:"service" firestore:"service"`
	Total    float64 `json:"total" firestore:"total"`
}

// Settlement is written exactly once, when the listing completes.
type Settlement struct {
	BuyerID     string       `json:"buyer_id" firestore:"buyerId"`
	FinalPrice  float64      `json:"final_price" firestore:"finalPrice"`
	Fees        FeeBreakdown `json:"fees" firestore:"fees"`
	CompletedAt time.Time    `json:"completed_at" firestore:"completedAt"`
}

type Listing struct {
	ID       string `json:"id" firestore:"id"`
	SellerID string `json:"seller_id" firestore:"sellerId"`

	// ItemID is set for single-item listings; ItemIDs for bundles.
	ItemID  string   `json:"item_id,omitempty" firestore:"itemId,omitempty"`
	ItemIDs []string `json:"item_ids,omitempty" firestore:"itemIds,omitempty"`

	Kind    ListingKind   `json:"kind" firestore:"kind"`
	Status  ListingStatus `json:"status" firestore:"status"`
	Pricing Pricing       `json:"pricing" firestore:"pricing"`

	Auction    *AuctionState `json:"auction,omitempty" firestore:"auction,omitempty"`
	Rental     *RentalState  `json:"rental,omitempty" firestore:"rental,omitempty"`
	Settlement *Settlement   `json:"settlement,omitempty" firestore:"settlement,omitempty"`

	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Items returns every item id the listing covers, regardless of kind.
func (l *Listing) Items() []string {
	if l.Kind == ListingKindBundle {
		return l.ItemIDs
	}
	if l.ItemID == "" {
		return nil
	}
	return []string{l.ItemID}
}

// WinningBid returns the bid currently flagged as winning, or nil.
func (l *Listing) WinningBid() *Bid {
	if l.Auction == nil {
		return nil
	}
	for i := range l.Auction.Bids {
		if l.Auction.Bids[i].IsWinning {
			return &l.Auction.Bids[i]
		}
	}
	return nil
}
