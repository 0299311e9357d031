package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepost/internal/domain/entity"
	"tradepost/pkg/errors"
)

func TestPlaceBidHoldsFunds(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})

	bid, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	require.NoError(t, err)

	assert.True(t, bid.IsWinning)
	assert.Equal(t, 15.0, f.ledger.heldAmount("bidder-1"))
	assert.Equal(t, 1, f.escrow.activeCount(listing.ID))

	stored, err := f.mkt.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, stored.Auction.CurrentBid)
	assert.Equal(t, "bidder-1", stored.Auction.CurrentWinnerID)
	assert.Equal(t, 1, stored.Auction.BidCount)
}

func TestPlaceBidBelowMinimum(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{MinimumBid: floatPtr(10)})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 9)
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
	assert.Zero(t, f.ledger.heldAmount("bidder-1"))
}

func TestPlaceBidMonotonicity(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)
	f.ledger.fund("bidder-2", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{
		MinimumBid:       floatPtr(10),
		MinimumIncrement: 5,
	})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 10)
	require.NoError(t, err)

	// Equal to the current bid and below current + increment both fail.
	_, err = f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-2", 10)
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))
	_, err = f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-2", 14)
	assert.True(t, errors.Is(err, "VALIDATION_ERROR"))

	_, err = f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-2", 15)
	assert.NoError(t, err)
}

func TestPlaceBidReleasesPreviousHold(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)
	f.ledger.fund("bidder-2", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 10)
	require.NoError(t, err)
	_, err = f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-2", 20)
	require.NoError(t, err)

	// Outbid funds are back with the loser immediately; exactly one hold
	// remains across ledger and escrow records.
	assert.Zero(t, f.ledger.heldAmount("bidder-1"))
	assert.Equal(t, 100.0, f.ledger.balance("bidder-1"))
	assert.Equal(t, 20.0, f.ledger.heldAmount("bidder-2"))
	assert.Equal(t, 1, f.escrow.activeCount(listing.ID))
}

func TestPlaceBidSelfBid(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("seller-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "seller-1", 15)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestPlaceBidInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 5)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	assert.True(t, errors.Is(err, "INSUFFICIENT_FUNDS"))
	assert.Zero(t, f.escrow.activeCount(listing.ID))
}

func TestPlaceBidAfterEnd(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})
	f.listings.mutate(listing.ID, func(l *entity.Listing) {
		l.Auction.EndTime = time.Now().Add(-time.Minute)
	})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	assert.True(t, errors.Is(err, "INVALID_STATE"))
}

func TestPlaceBidOnNonAuction(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing, err := f.mkt.CreateListing(context.Background(), "seller-1", CreateListingInput{
		ItemID: "item-1",
		Kind:   entity.ListingKindFixedPrice,
		Price:  floatPtr(30),
	})
	require.NoError(t, err)

	_, err = f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	assert.True(t, errors.Is(err, "INVALID_STATE"))
}

func TestPlaceBidAfterFinalizationStarted(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})
	f.listings.mutate(listing.ID, func(l *entity.Listing) {
		l.Status = entity.ListingStatusFinalizing
	})

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	assert.True(t, errors.Is(err, "INVALID_STATE"))
	assert.Zero(t, f.ledger.heldAmount("bidder-1"))
}

func TestPlaceBidAutoExtend(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{
		Duration:        5 * time.Minute,
		AutoExtend:      true,
		ExtensionWindow: 30 * time.Minute,
	})
	originalEnd := listing.Auction.EndTime

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	require.NoError(t, err)

	stored, err := f.mkt.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.True(t, stored.Auction.EndTime.After(originalEnd))
}

func TestPlaceBidAutoExtendNeverShortens(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 100)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{
		Duration:        time.Hour,
		AutoExtend:      true,
		ExtensionWindow: time.Minute,
	})
	originalEnd := listing.Auction.EndTime

	_, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 15)
	require.NoError(t, err)

	stored, err := f.mkt.GetListing(context.Background(), listing.ID)
	require.NoError(t, err)
	assert.Equal(t, originalEnd.Unix(), stored.Auction.EndTime.Unix())
}

func TestPlaceBidZeroMinimumAcceptsZeroBid(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-1", 10)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{
		MinimumBid: floatPtr(0),
	})

	bid, err := f.mkt.PlaceBid(context.Background(), listing.ID, "bidder-1", 0)
	require.NoError(t, err)
	assert.True(t, bid.IsWinning)
	assert.Equal(t, 0.0, bid.Amount)
	assert.Equal(t, 1, f.escrow.activeCount(listing.ID))
}

func TestCancelResolvesInterruptedBidHolds(t *testing.T) {
	f := newFixture()
	f.registry.setOwner("item-1", "seller-1")
	f.ledger.fund("bidder-2", 50)

	listing := createAuction(t, f, "seller-1", "item-1", CreateListingInput{})

	// A bid that crashed between writing its pending record and placing
	// the ledger hold: the record references a hold the ledger never saw.
	now := time.Now()
	require.NoError(t, f.escrow.Create(context.Background(), &entity.EscrowHold{
		ID:           "stale-1",
		ListingID:    listing.ID,
		BidderID:     "bidder-1",
		Amount:       15,
		Currency:     DefaultCurrency,
		LedgerHoldID: "stale-1",
		Status:       entity.EscrowHoldPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	// A bid that crashed after the ledger hold landed but before the
	// record was marked active.
	require.NoError(t, f.ledger.Hold(context.Background(), "stale-2", "bidder-2", 15, DefaultCurrency))
	require.NoError(t, f.escrow.Create(context.Background(), &entity.EscrowHold{
		ID:           "stale-2",
		ListingID:    listing.ID,
		BidderID:     "bidder-2",
		Amount:       15,
		Currency:     DefaultCurrency,
		LedgerHoldID: "stale-2",
		Status:       entity.EscrowHoldPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	_, err := f.mkt.CancelListing(context.Background(), listing.ID, "seller-1")
	require.NoError(t, err)

	first, err := f.escrow.GetByID(context.Background(), "stale-1")
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowHoldReleased, first.Status)

	second, err := f.escrow.GetByID(context.Background(), "stale-2")
	require.NoError(t, err)
	assert.Equal(t, entity.EscrowHoldReleased, second.Status)
	assert.Equal(t, 0.0, f.ledger.heldAmount("bidder-2"))
}
