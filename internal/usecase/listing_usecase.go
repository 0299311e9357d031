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

const DefaultCurrency = "CREDITS"

type ListingUseCase struct {
	listingRepo    repository.ListingRepository
	escrowRepo     repository.EscrowRepository
	settlementRepo repository.SettlementRepository
	ledger         service.LedgerClient
	registry       service.OwnershipRegistry
	publisher      service.EventPublisher
	locks          *listingLocks
}

func NewListingUseCase(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	settlementRepo repository.SettlementRepository,
	ledger service.LedgerClient,
	registry service.OwnershipRegistry,
	publisher service.EventPublisher,
	locks *listingLocks,
) *ListingUseCase {
	return &ListingUseCase{
		listingRepo:    listingRepo,
		escrowRepo:     escrowRepo,
		settlementRepo: settlementRepo,
		ledger:         ledger,
		registry:       registry,
		publisher:      publisher,
		locks:          locks,
	}
}

type CreateListingInput struct {
	ItemID   string             `json:"item_id"`
	Kind     entity.ListingKind `json:"kind"`
	Currency string             `json:"currency"`

	// Fixed-price listings.
	Price *float64 `json:"price,omitempty"`

	// Auction listings.
	MinimumBid       *float64      `json:"minimum_bid,omitempty"`
	ReservePrice     *float64      `json:"reserve_price,omitempty"`
	BuyNowPrice      *float64      `json:"buy_now_price,omitempty"`
	MinimumIncrement float64       `json:"minimum_increment,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	AutoExtend       bool          `json:"auto_extend,omitempty"`
	ExtensionWindow  time.Duration `json:"extension_window,omitempty"`
}

// CreateListing creates a fixed-price or auction listing. Bundles and
// rentals have their own creation paths with kind-specific validation.
func (uc *ListingUseCase) CreateListing(ctx context.Context, sellerID string, input CreateListingInput) (*entity.Listing, error) {
	if input.ItemID == "" {
		return nil, errors.BadRequest("Item id is required", nil)
	}

	owner, err := uc.registry.OwnerOf(ctx, input.ItemID)
	if err != nil {
		return nil, errors.Upstream("Failed to look up item owner", err)
	}
	if owner != sellerID {
		return nil, errors.Forbidden("Only the item owner can list it", nil)
	}

	currency := input.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := time.Now()
	listing := &entity.Listing{
		ID:       uuid.New().String(),
		SellerID: sellerID,
		ItemID:   input.ItemID,
		Kind:     input.Kind,
		Status:   entity.ListingStatusActive,
		Pricing: entity.Pricing{
			Currency: currency,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch input.Kind {
	case entity.ListingKindFixedPrice:
		if input.Price == nil || *input.Price < 0 {
			return nil, errors.BadRequest("Fixed-price listings require a non-negative price", nil)
		}
		listing.Pricing.Price = input.Price

	case entity.ListingKindAuction:
		if input.MinimumBid == nil || *input.MinimumBid < 0 {
			return nil, errors.BadRequest("Auctions require a non-negative minimum bid", nil)
		}
		if input.ReservePrice != nil && *input.ReservePrice < 0 {
			return nil, errors.BadRequest("Reserve price must not be negative", nil)
		}
		if input.BuyNowPrice != nil && *input.BuyNowPrice < *input.MinimumBid {
			return nil, errors.BadRequest("Buy-now price must not be below the minimum bid", nil)
		}
		if input.Duration <= 0 {
			return nil, errors.BadRequest("Auctions require a positive duration", nil)
		}
		if input.AutoExtend && input.ExtensionWindow <= 0 {
			return nil, errors.BadRequest("Auto-extend requires a positive extension window", nil)
		}

		increment := input.MinimumIncrement
		if increment <= 0 {
			increment = 1
		}

		listing.Pricing.MinimumBid = input.MinimumBid
		listing.Pricing.ReservePrice = input.ReservePrice
		listing.Pricing.BuyNowPrice = input.BuyNowPrice
		listing.Auction = &entity.AuctionState{
			StartTime:        now,
			EndTime:          now.Add(input.Duration),
			CurrentBid:       0,
			BidCount:         0,
			MinimumIncrement: increment,
			AutoExtend:       input.AutoExtend,
			ExtensionWindow:  input.ExtensionWindow,
			Bids:             []entity.Bid{},
		}

	case entity.ListingKindBundle:
		return nil, errors.BadRequest("Use the bundle endpoint to create bundle listings", nil)

	case entity.ListingKindRental:
		return nil, errors.BadRequest("Use the rental endpoint to create rental listings", nil)

	default:
		return nil, errors.BadRequest("Unknown listing kind", nil)
	}

	if err := uc.listingRepo.Create(ctx, listing); err != nil {
		return nil, err
	}

	logger.Info("Listing %s created: kind=%s item=%s seller=%s", listing.ID, listing.Kind, listing.ItemID, sellerID)
	publishEvent(ctx, uc.publisher, service.EventListingCreated, listing.ID, sellerID, map[string]interface{}{
		"kind":    string(listing.Kind),
		"item_id": listing.ItemID,
	})

	return listing, nil
}

// CancelListing transitions an ACTIVE listing to CANCELLED. For auctions
// all outstanding escrow holds are released first; the transition goes
// through the finalizing marker so it cannot race the scheduler sweep.
func (uc *ListingUseCase) CancelListing(ctx context.Context, listingID, requesterID string) (*entity.Listing, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.SellerID != requesterID {
		return nil, errors.Forbidden("Only the seller can cancel this listing", nil)
	}
	if listing.Status != entity.ListingStatusActive {
		return nil, errors.InvalidState("Listing is not active", nil)
	}
	if listing.Kind == entity.ListingKindRental && listing.Rental != nil {
		for _, contract := range listing.Rental.Contracts {
			if contract.Status == entity.RentalContractActive {
				return nil, errors.Conflict("Rental listing has live contracts", nil)
			}
		}
	}

	listing.UpdatedAt = time.Now()

	if listing.Kind == entity.ListingKindAuction {
		// Claim finalization authority before touching escrow so a
		// concurrent sweep pass cannot settle what we are cancelling.
		if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusActive, entity.ListingStatusFinalizing); err != nil {
			return nil, err
		}
		listing.Status = entity.ListingStatusFinalizing

		if err := releaseHolds(ctx, uc.escrowRepo, uc.ledger, listingID); err != nil {
			// Listing stays in finalizing; the sweep resumes the cancel.
			return nil, err
		}

		listing.UpdatedAt = time.Now()
		if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusCancelled); err != nil {
			return nil, err
		}
	} else {
		if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusActive, entity.ListingStatusCancelled); err != nil {
			return nil, err
		}
	}
	listing.Status = entity.ListingStatusCancelled

	logger.Info("Listing %s cancelled by %s", listingID, requesterID)
	publishEvent(ctx, uc.publisher, service.EventListingCancelled, listingID, requesterID, nil)

	return listing, nil
}

func (uc *ListingUseCase) GetListing(ctx context.Context, listingID string) (*entity.Listing, error) {
	return uc.listingRepo.GetByID(ctx, listingID)
}

func (uc *ListingUseCase) ListListings(ctx context.Context, kind, status, sellerID string, limit, offset int) ([]*entity.Listing, int64, error) {
	filter := make(map[string]interface{})

	if kind != "" {
		filter["kind"] = kind
	}
	if status != "" {
		filter["status"] = status
	} else {
		filter["status"] = string(entity.ListingStatusActive)
	}
	if sellerID != "" {
		filter["sellerId"] = sellerID
	}

	return uc.listingRepo.List(ctx, filter, limit, offset)
}

// ListBids returns the ordered bid history of an auction listing.
func (uc *ListingUseCase) ListBids(ctx context.Context, listingID string) ([]entity.Bid, error) {
	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Kind != entity.ListingKindAuction || listing.Auction == nil {
		return nil, errors.InvalidState("Listing is not an auction", nil)
	}
	return listing.Auction.Bids, nil
}

// GetSettlement looks up the immutable settlement record for a completed
// sale, for history and dispute resolution.
func (uc *ListingUseCase) GetSettlement(ctx context.Context, listingID string) (*entity.SettlementRecord, error) {
	return uc.settlementRepo.GetByID(ctx, listingID)
}

// releaseHolds resolves every open escrow hold for a listing, marking the
// durable hold records accordingly. Shared by cancel and finalize paths;
// resolving is idempotent per hold.
func releaseHolds(ctx context.Context, escrowRepo repository.EscrowRepository, ledger service.LedgerClient, listingID string) error {
	holds, err := escrowRepo.ListOpenByListing(ctx, listingID)
	if err != nil {
		return errors.Upstream("Failed to list escrow holds", err)
	}

	for _, hold := range holds {
		if err := resolveHold(ctx, escrowRepo, ledger, hold); err != nil {
			return err
		}
	}

	return nil
}

// resolveHold releases one hold and records the outcome. When a crash left
// the record and the ledger divergent, the ledger is the authority on
// whether money moved: a hold it already converted is recorded as captured,
// a hold it never saw is closed out with nothing to free.
func resolveHold(ctx context.Context, escrowRepo repository.EscrowRepository, ledger service.LedgerClient, hold *entity.EscrowHold) error {
	resolved := entity.EscrowHoldReleased
	if err := ledger.Release(ctx, hold.LedgerHoldID); err != nil {
		switch {
		case errors.Is(err, "CONFLICT"):
			resolved = entity.EscrowHoldCaptured
		case errors.Is(err, "NOT_FOUND"):
			// Pending record whose ledger hold was never placed.
		default:
			return errors.Upstream("Failed to release escrow hold", err)
		}
	}

	hold.Status = resolved
	hold.UpdatedAt = time.Now()
	if err := escrowRepo.Update(ctx, hold); err != nil {
		return errors.Upstream("Failed to update escrow hold record", err)
	}

	return nil
}
