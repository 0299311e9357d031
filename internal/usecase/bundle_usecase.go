package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

type BundleUseCase struct {
	settleDeps
	locks *listingLocks
}

func NewBundleUseCase(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	settlementRepo repository.SettlementRepository,
	ledger service.LedgerClient,
	registry service.OwnershipRegistry,
	publisher service.EventPublisher,
	fees *FeeCalculator,
	locks *listingLocks,
) *BundleUseCase {
	return &BundleUseCase{
		settleDeps: settleDeps{
			listingRepo:    listingRepo,
			escrowRepo:     escrowRepo,
			settlementRepo: settlementRepo,
			ledger:         ledger,
			registry:       registry,
			publisher:      publisher,
			fees:           fees,
		},
		locks: locks,
	}
}

type CreateBundleInput struct {
	ItemIDs     []string `json:"item_ids"`
	Currency    string   `json:"currency"`
	TotalPrice  float64  `json:"total_price"`
	DiscountPct float64  `json:"discount_pct"`
}

// CreateBundle groups multiple items into one listing with a single
// settlement price. Listing the items is all-or-nothing: if any item
// already has an ACTIVE listing, none are listed.
func (uc *BundleUseCase) CreateBundle(ctx context.Context, sellerID string, input CreateBundleInput) (*entity.Listing, error) {
	if len(input.ItemIDs) < 2 {
		return nil, errors.BadRequest("Bundles require at least two items", nil)
	}
	seen := make(map[string]bool, len(input.ItemIDs))
	for _, itemID := range input.ItemIDs {
		if itemID == "" {
			return nil, errors.BadRequest("Bundle item ids must not be empty", nil)
		}
		if seen[itemID] {
			return nil, errors.BadRequest("Bundle items must be distinct", nil)
		}
		seen[itemID] = true
	}
	if input.TotalPrice < 0 {
		return nil, errors.BadRequest("Bundle price must not be negative", nil)
	}
	if input.DiscountPct < 0 || input.DiscountPct > 100 {
		return nil, errors.BadRequest("Bundle discount must be between 0 and 100", nil)
	}

	for _, itemID := range input.ItemIDs {
		owner, err := uc.registry.OwnerOf(ctx, itemID)
		if err != nil {
			return nil, errors.Upstream("Failed to look up item owner", err)
		}
		if owner != sellerID {
			return nil, errors.Forbidden("Only the item owner can list it", nil)
		}
	}

	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := time.Now()
	price := input.TotalPrice
	discount := input.DiscountPct
	listing := &entity.Listing{
		ID:       uuid.New().String(),
		SellerID: sellerID,
		ItemIDs:  input.ItemIDs,
		Kind:     entity.ListingKindBundle,
		Status:   entity.ListingStatusActive,
		Pricing: entity.Pricing{
			Currency:          currency,
			Price:             &price,
			BundleDiscountPct: &discount,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.listingRepo.Create(ctx, listing); err != nil {
		return nil, err
	}

	logger.Info("Bundle %s created: items=%d price=%.2f seller=%s", listing.ID, len(input.ItemIDs), price, sellerID)
	publishEvent(ctx, uc.publisher, service.EventListingCreated, listing.ID, sellerID, map[string]interface{}{
		"kind":     string(entity.ListingKindBundle),
		"item_ids": input.ItemIDs,
	})

	return listing, nil
}

// PurchaseBundle settles the whole bundle with a single transfer of the
// total price; ownership of every referenced item then moves to the buyer
// together. If an item handover fails after payment, the listing stays in
// the finalizing marker and a retry (by the buyer or the recovery sweep)
// resumes the remaining transfers without re-charging.
func (uc *BundleUseCase) PurchaseBundle(ctx context.Context, buyerID, listingID string) (*entity.Listing, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Kind != entity.ListingKindBundle {
		return nil, errors.InvalidState("Listing is not a bundle", nil)
	}

	if listing.Status == entity.ListingStatusFinalizing {
		record, err := uc.loadSettlement(ctx, listing.ID)
		if err != nil {
			return nil, err
		}
		if record == nil || record.BuyerID != buyerID {
			return nil, errors.InvalidState("Bundle is being finalized", nil)
		}
		if err := uc.completeSale(ctx, listing, record, service.EventBundlePurchased); err != nil {
			return nil, err
		}
		return listing, nil
	}

	if listing.Status != entity.ListingStatusActive {
		return nil, errors.InvalidState("Bundle is not active", nil)
	}
	if buyerID == listing.SellerID {
		return nil, errors.Forbidden("Sellers cannot buy their own bundle", nil)
	}
	if listing.Pricing.Price == nil {
		return nil, errors.InvalidState("Bundle has no price", nil)
	}

	if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusActive, entity.ListingStatusFinalizing); err != nil {
		if errors.Is(err, "CONFLICT") {
			return nil, errors.InvalidState("Bundle is being finalized", err)
		}
		return nil, err
	}
	listing.Status = entity.ListingStatusFinalizing

	record, err := holdAndRecordSale(ctx, uc.settleDeps, listing, buyerID, *listing.Pricing.Price)
	if err != nil {
		return nil, err
	}

	if err := uc.completeSale(ctx, listing, record, service.EventBundlePurchased); err != nil {
		return nil, err
	}

	return listing, nil
}
