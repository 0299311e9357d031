package usecase

import (
	"context"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/internal/domain/service"
)

// Marketplace is the facade the request layer and the scheduler talk to.
// It composes the listing, bid, auction, rental and bundle engines over a
// shared per-listing lock set; nothing outside this package mutates the
// listing, escrow or settlement records.
type Marketplace struct {
	Listings *ListingUseCase
	Bids     *BidUseCase
	Auctions *AuctionUseCase
	Rentals  *RentalUseCase
	Bundles  *BundleUseCase
}

func NewMarketplace(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	settlementRepo repository.SettlementRepository,
	ledger service.LedgerClient,
	registry service.OwnershipRegistry,
	publisher service.EventPublisher,
	fees *FeeCalculator,
) *Marketplace {
	locks := newListingLocks()

	return &Marketplace{
		Listings: NewListingUseCase(listingRepo, escrowRepo, settlementRepo, ledger, registry, publisher, locks),
		Bids:     NewBidUseCase(listingRepo, escrowRepo, ledger, publisher, locks),
		Auctions: NewAuctionUseCase(listingRepo, escrowRepo, settlementRepo, ledger, registry, publisher, fees, locks),
		Rentals:  NewRentalUseCase(listingRepo, escrowRepo, settlementRepo, ledger, registry, publisher, fees, locks),
		Bundles:  NewBundleUseCase(listingRepo, escrowRepo, settlementRepo, ledger, registry, publisher, fees, locks),
	}
}

func (m *Marketplace) CreateListing(ctx context.Context, sellerID string, input CreateListingInput) (*entity.Listing, error) {
	return m.Listings.CreateListing(ctx, sellerID, input)
}

func (m *Marketplace) CancelListing(ctx context.Context, listingID, requesterID string) (*entity.Listing, error) {
	return m.Listings.CancelListing(ctx, listingID, requesterID)
}

func (m *Marketplace) GetListing(ctx context.Context, listingID string) (*entity.Listing, error) {
	return m.Listings.GetListing(ctx, listingID)
}

func (m *Marketplace) PlaceBid(ctx context.Context, listingID, bidderID string, amount float64) (*entity.Bid, error) {
	return m.Bids.PlaceBid(ctx, listingID, bidderID, amount)
}

func (m *Marketplace) BuyNow(ctx context.Context, listingID, buyerID string) (*entity.Listing, error) {
	return m.Auctions.BuyNow(ctx, listingID, buyerID)
}

func (m *Marketplace) FinalizeDueAuctions(ctx context.Context) (int, error) {
	return m.Auctions.FinalizeDueAuctions(ctx)
}

func (m *Marketplace) RecoverFinalizing(ctx context.Context) (int, error) {
	return m.Auctions.RecoverFinalizing(ctx)
}

func (m *Marketplace) CreateRental(ctx context.Context, sellerID string, input CreateRentalInput) (*entity.Listing, error) {
	return m.Rentals.CreateRental(ctx, sellerID, input)
}

func (m *Marketplace) AcceptRental(ctx context.Context, renterID, listingID string, periodDays int, autoRenewal bool) (*entity.RentalContract, error) {
	return m.Rentals.AcceptRental(ctx, renterID, listingID, periodDays, autoRenewal)
}

func (m *Marketplace) EndRental(ctx context.Context, actorID, listingID, contractID string) (*entity.RentalContract, error) {
	return m.Rentals.EndRental(ctx, actorID, listingID, contractID)
}

func (m *Marketplace) ExpireDueRentals(ctx context.Context) (int, error) {
	return m.Rentals.ExpireDueRentals(ctx)
}

func (m *Marketplace) CreateBundle(ctx context.Context, sellerID string, input CreateBundleInput) (*entity.Listing, error) {
	return m.Bundles.CreateBundle(ctx, sellerID, input)
}

func (m *Marketplace) PurchaseBundle(ctx context.Context, buyerID, listingID string) (*entity.Listing, error) {
	return m.Bundles.PurchaseBundle(ctx, buyerID, listingID)
}
