package usecase

import (
	"context"
	"time"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

// finalizingGrace is how long a listing may sit in the finalizing marker
// before the recovery sweep picks it up. It covers the normal settlement
// round-trip so recovery only touches genuinely stuck listings.
const finalizingGrace = 2 * time.Minute

const dueAuctionBatchSize = 100

type AuctionUseCase struct {
	settleDeps
	locks *listingLocks
}

func NewAuctionUseCase(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	settlementRepo repository.SettlementRepository,
	ledger service.LedgerClient,
	registry service.OwnershipRegistry,
	publisher service.EventPublisher,
	fees *FeeCalculator,
	locks *listingLocks,
) *AuctionUseCase {
	return &AuctionUseCase{
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

// FinalizeDueAuctions is the scheduler entry point: it finalizes every
// ACTIVE auction whose end time has elapsed, each exactly once. Errors on
// individual auctions are logged and retried on the next tick.
func (uc *AuctionUseCase) FinalizeDueAuctions(ctx context.Context) (int, error) {
	due, err := uc.listingRepo.ListDueAuctions(ctx, time.Now(), dueAuctionBatchSize)
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, listing := range due {
		if err := uc.Finalize(ctx, listing.ID); err != nil {
			logger.LogSweepError("auction-finalize", listing.ID, err)
			continue
		}
		finalized++
	}

	return finalized, nil
}

// Finalize settles one due auction. The compare-and-set from ACTIVE to the
// finalizing marker happens before any side effect, so a concurrent buy-now
// or second sweep pass cannot double-finalize. Calling it on a listing that
// already reached a terminal state is a no-op.
func (uc *AuctionUseCase) Finalize(ctx context.Context, listingID string) error {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}

	switch {
	case listing.Status.IsTerminal():
		return nil

	case listing.Status == entity.ListingStatusActive:
		if listing.Kind != entity.ListingKindAuction || listing.Auction == nil {
			return errors.InvalidState("Listing is not an auction", nil)
		}
		if time.Now().Before(listing.Auction.EndTime) {
			return errors.InvalidState("Auction has not ended yet", nil)
		}
		if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusActive, entity.ListingStatusFinalizing); err != nil {
			if errors.Is(err, "CONFLICT") {
				// Another caller claimed finalization.
				return nil
			}
			return err
		}
		listing.Status = entity.ListingStatusFinalizing
		return uc.settleAuction(ctx, listing)

	case listing.Status == entity.ListingStatusFinalizing:
		return uc.settleAuction(ctx, listing)

	default:
		return errors.InvalidState("Listing cannot be finalized from its current state", nil)
	}
}

// settleAuction drives a finalizing auction to its terminal state. The
// required action is re-derived from durable state every time, so a retry
// after a crash or upstream failure resumes instead of double-charging.
func (uc *AuctionUseCase) settleAuction(ctx context.Context, listing *entity.Listing) error {
	record, err := uc.loadSettlement(ctx, listing.ID)
	if err != nil {
		return err
	}

	if record == nil {
		// No money has moved yet. A finalizing marker before the end time
		// cannot come from a due finalize, so it is an interrupted cancel
		// (or an interrupted buy-now that never charged): release the
		// holds and finish the cancel. Never settle a sale here, even
		// with a winning bid on record.
		if listing.Auction != nil && time.Now().Before(listing.Auction.EndTime) {
			if err := releaseHolds(ctx, uc.escrowRepo, uc.ledger, listing.ID); err != nil {
				return err
			}

			listing.UpdatedAt = time.Now()
			if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusCancelled); err != nil {
				return err
			}
			listing.Status = entity.ListingStatusCancelled
			publishEvent(ctx, uc.publisher, service.EventListingCancelled, listing.ID, listing.SellerID, nil)
			return nil
		}

		winning := listing.WinningBid()
		reserveMet := winning != nil
		if reserveMet && listing.Pricing.ReservePrice != nil && winning.Amount < *listing.Pricing.ReservePrice {
			reserveMet = false
		}

		if !reserveMet {
			// Not a sale, so the winning hold is released along with the
			// rest.
			if err := releaseHolds(ctx, uc.escrowRepo, uc.ledger, listing.ID); err != nil {
				return err
			}

			listing.UpdatedAt = time.Now()
			if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusExpired); err != nil {
				return err
			}
			listing.Status = entity.ListingStatusExpired

			logger.Info("Auction %s expired without settlement: bids=%d", listing.ID, listing.Auction.BidCount)
			publishEvent(ctx, uc.publisher, service.EventAuctionExpired, listing.ID, "", map[string]interface{}{
				"bid_count": listing.Auction.BidCount,
			})
			return nil
		}

		record, err = uc.createSaleRecord(ctx, listing, winning.BidderID, winning.Amount)
		if err != nil {
			return err
		}
	}

	return uc.completeSale(ctx, listing, record, saleEventFor(listing.Kind))
}

// BuyNow short-circuits an auction with a configured buy-now price or
// completes a fixed-price listing, on the same fee and settlement path as
// finalization and guarded by the same compare-and-set.
func (uc *AuctionUseCase) BuyNow(ctx context.Context, listingID, buyerID string) (*entity.Listing, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Status == entity.ListingStatusFinalizing {
		// A crashed earlier attempt by the same buyer may be resumed.
		record, err := uc.loadSettlement(ctx, listing.ID)
		if err != nil {
			return nil, err
		}
		if record == nil || record.BuyerID != buyerID {
			return nil, errors.InvalidState("Listing is being finalized", nil)
		}
		if err := uc.completeSale(ctx, listing, record, saleEventFor(listing.Kind)); err != nil {
			return nil, err
		}
		return listing, nil
	}

	if listing.Status != entity.ListingStatusActive {
		return nil, errors.InvalidState("Listing is not active", nil)
	}
	if buyerID == listing.SellerID {
		return nil, errors.Forbidden("Sellers cannot buy their own listing", nil)
	}

	var price float64
	switch listing.Kind {
	case entity.ListingKindFixedPrice:
		if listing.Pricing.Price == nil {
			return nil, errors.InvalidState("Listing has no price", nil)
		}
		price = *listing.Pricing.Price
	case entity.ListingKindAuction:
		if listing.Pricing.BuyNowPrice == nil {
			return nil, errors.InvalidState("Auction has no buy-now price", nil)
		}
		price = *listing.Pricing.BuyNowPrice
	default:
		return nil, errors.InvalidState("Listing kind does not support buy-now", nil)
	}

	if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusActive, entity.ListingStatusFinalizing); err != nil {
		if errors.Is(err, "CONFLICT") {
			return nil, errors.InvalidState("Listing is being finalized", err)
		}
		return nil, err
	}
	listing.Status = entity.ListingStatusFinalizing

	record, err := holdAndRecordSale(ctx, uc.settleDeps, listing, buyerID, price)
	if err != nil {
		return nil, err
	}

	if err := uc.completeSale(ctx, listing, record, saleEventFor(listing.Kind)); err != nil {
		return nil, err
	}

	return listing, nil
}

// RecoverFinalizing resumes listings stuck in the finalizing marker, for
// example after a crash between the status flip and settlement. The action
// is re-derived from durable state: with a settlement record the sale is
// completed; without one the funds are released and the listing either
// reverts to ACTIVE (interrupted purchase) or finishes its cancel/expiry.
func (uc *AuctionUseCase) RecoverFinalizing(ctx context.Context) (int, error) {
	stuck, err := uc.listingRepo.ListFinalizing(ctx, time.Now().Add(-finalizingGrace), dueAuctionBatchSize)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, listing := range stuck {
		if err := uc.recoverOne(ctx, listing.ID); err != nil {
			logger.LogSweepError("finalizing-recovery", listing.ID, err)
			continue
		}
		recovered++
	}

	return recovered, nil
}

func (uc *AuctionUseCase) recoverOne(ctx context.Context, listingID string) error {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return err
	}
	if listing.Status != entity.ListingStatusFinalizing {
		return nil
	}

	switch listing.Kind {
	case entity.ListingKindAuction:
		return uc.settleAuction(ctx, listing)
	case entity.ListingKindFixedPrice, entity.ListingKindBundle:
		return uc.resumeSale(ctx, listing)
	default:
		// Rentals never enter the finalizing marker.
		logger.Warn("Unexpected finalizing listing %s of kind %s", listing.ID, listing.Kind)
		return nil
	}
}

// resumeSale finishes an interrupted fixed-price or bundle purchase. With
// no settlement record the buyer was never charged, so any hold is released
// and the listing goes back on sale.
func (uc *AuctionUseCase) resumeSale(ctx context.Context, listing *entity.Listing) error {
	record, err := uc.loadSettlement(ctx, listing.ID)
	if err != nil {
		return err
	}

	if record != nil {
		return uc.completeSale(ctx, listing, record, saleEventFor(listing.Kind))
	}

	if err := releaseHolds(ctx, uc.escrowRepo, uc.ledger, listing.ID); err != nil {
		return err
	}

	listing.UpdatedAt = time.Now()
	if err := uc.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusActive); err != nil {
		return err
	}
	listing.Status = entity.ListingStatusActive
	return nil
}

func saleEventFor(kind entity.ListingKind) string {
	switch kind {
	case entity.ListingKindAuction:
		return service.EventAuctionCompleted
	case entity.ListingKindBundle:
		return service.EventBundlePurchased
	default:
		return service.EventListingSold
	}
}
