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

type BidUseCase struct {
	listingRepo repository.ListingRepository
	escrowRepo  repository.EscrowRepository
	ledger      service.LedgerClient
	publisher   service.EventPublisher
	locks       *listingLocks
}

func NewBidUseCase(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	ledger service.LedgerClient,
	publisher service.EventPublisher,
	locks *listingLocks,
) *BidUseCase {
	return &BidUseCase{
		listingRepo: listingRepo,
		escrowRepo:  escrowRepo,
		ledger:      ledger,
		publisher:   publisher,
		locks:       locks,
	}
}

// PlaceBid validates and records a bid on an ACTIVE auction. The previous
// winning bidder's funds are released back to them immediately, not merely
// re-pointed. Finalization is the authority on liveness: once the status
// left ACTIVE a bid is rejected no matter what the clock says.
func (uc *BidUseCase) PlaceBid(ctx context.Context, listingID, bidderID string, amount float64) (*entity.Bid, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Kind != entity.ListingKindAuction || listing.Auction == nil {
		return nil, errors.InvalidState("Listing is not an auction", nil)
	}
	if listing.Status != entity.ListingStatusActive {
		return nil, errors.InvalidState("Auction is not active", nil)
	}
	now := time.Now()
	if now.After(listing.Auction.EndTime) {
		return nil, errors.InvalidState("Auction has ended", nil)
	}
	if bidderID == listing.SellerID {
		return nil, errors.Forbidden("Sellers cannot bid on their own auction", nil)
	}

	required := requiredMinimum(listing)
	if amount < required {
		return nil, errors.BadRequest("Bid is below the required minimum", nil)
	}

	currency := listing.Pricing.Currency

	ok, err := uc.ledger.CheckBalance(ctx, bidderID, amount, currency)
	if err != nil {
		return nil, errors.Upstream("Failed to check bidder balance", err)
	}
	if !ok {
		return nil, errors.InsufficientFunds("Bidder balance does not cover the bid", nil)
	}

	// The pending record goes down before the ledger call so a crash
	// mid-hold always leaves a durable reference to re-derive the release
	// from; the next release pass closes it out either way.
	hold := &entity.EscrowHold{
		ID:        uuid.New().String(),
		ListingID: listingID,
		BidderID:  bidderID,
		Amount:    amount,
		Currency:  currency,
		Status:    entity.EscrowHoldPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	hold.LedgerHoldID = hold.ID
	if err := uc.escrowRepo.Create(ctx, hold); err != nil {
		return nil, errors.Upstream("Failed to record escrow hold", err)
	}

	if err := uc.ledger.Hold(ctx, hold.LedgerHoldID, bidderID, amount, currency); err != nil {
		uc.closeHold(ctx, hold)
		if errors.Is(err, "INSUFFICIENT_FUNDS") {
			return nil, err
		}
		return nil, errors.Upstream("Failed to hold bidder funds", err)
	}

	hold.Status = entity.EscrowHoldActive
	hold.UpdatedAt = time.Now()
	if err := uc.escrowRepo.Update(ctx, hold); err != nil {
		uc.compensateHold(ctx, hold.LedgerHoldID)
		return nil, errors.Upstream("Failed to record escrow hold", err)
	}

	bid := entity.Bid{
		ID:        uuid.New().String(),
		BidderID:  bidderID,
		Amount:    amount,
		Currency:  currency,
		IsWinning: true,
		CreatedAt: now,
	}

	for i := range listing.Auction.Bids {
		listing.Auction.Bids[i].IsWinning = false
	}
	listing.Auction.Bids = append(listing.Auction.Bids, bid)
	listing.Auction.CurrentBid = amount
	listing.Auction.CurrentWinnerID = bidderID
	listing.Auction.BidCount++

	// Auto-extend only pushes the end time out, never in.
	if listing.Auction.AutoExtend && listing.Auction.EndTime.Sub(now) < listing.Auction.ExtensionWindow {
		extended := now.Add(listing.Auction.ExtensionWindow)
		if extended.After(listing.Auction.EndTime) {
			listing.Auction.EndTime = extended
		}
	}

	listing.UpdatedAt = now

	if err := uc.listingRepo.UpdateActive(ctx, listing); err != nil {
		// The scheduler won the race; give the bidder their funds back.
		uc.compensateHold(ctx, hold.LedgerHoldID)
		uc.closeHold(ctx, hold)
		if errors.Is(err, "CONFLICT") {
			return nil, errors.InvalidState("Auction is not active", err)
		}
		return nil, err
	}

	// Free the previous winner's funds. This is a release back to the
	// bidder, so the funds are visible to them immediately. Release is an
	// internal operation: a failure here is logged and re-verified at
	// finalization, never surfaced to the new bidder.
	if err := uc.releasePreviousHold(ctx, listing, hold.ID); err != nil {
		logger.LogSweepError("bid-loss-release", listingID, err)
	}

	logger.Info("Bid %s placed on %s: bidder=%s amount=%.2f count=%d", bid.ID, listingID, bidderID, amount, listing.Auction.BidCount)
	publishEvent(ctx, uc.publisher, service.EventBidPlaced, listingID, bidderID, map[string]interface{}{
		"bid_id": bid.ID,
		"amount": amount,
	})

	return &bid, nil
}

// requiredMinimum is max(minimumBid, currentBid + minimumIncrement).
func requiredMinimum(listing *entity.Listing) float64 {
	required := 0.0
	if listing.Pricing.MinimumBid != nil {
		required = *listing.Pricing.MinimumBid
	}
	if listing.Auction.BidCount > 0 {
		withIncrement := listing.Auction.CurrentBid + listing.Auction.MinimumIncrement
		if withIncrement > required {
			required = withIncrement
		}
	}
	return required
}

func (uc *BidUseCase) releasePreviousHold(ctx context.Context, listing *entity.Listing, newHoldID string) error {
	holds, err := uc.escrowRepo.ListOpenByListing(ctx, listing.ID)
	if err != nil {
		return errors.Upstream("Failed to list escrow holds", err)
	}

	for _, hold := range holds {
		if hold.ID == newHoldID {
			continue
		}
		if err := resolveHold(ctx, uc.escrowRepo, uc.ledger, hold); err != nil {
			return err
		}
	}

	return nil
}

func (uc *BidUseCase) compensateHold(ctx context.Context, ledgerHoldID string) {
	if err := uc.ledger.Release(ctx, ledgerHoldID); err != nil {
		logger.Error("Failed to release ledger hold %s during bid compensation: %v", ledgerHoldID, err)
	}
}

// closeHold marks a hold record released after its funds were freed or
// were never reserved. Best effort: a stale open record is re-resolved by
// the next release pass.
func (uc *BidUseCase) closeHold(ctx context.Context, hold *entity.EscrowHold) {
	hold.Status = entity.EscrowHoldReleased
	hold.UpdatedAt = time.Now()
	if err := uc.escrowRepo.Update(ctx, hold); err != nil {
		logger.LogSweepError("bid-compensation", hold.ListingID, err)
	}
}
