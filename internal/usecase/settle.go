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

// settleDeps bundles the collaborators every settlement path needs. Auction
// finalization, buy-now and bundle purchase all run the same sale pipeline:
// convert the buyer's hold, release every other hold, hand over ownership
// item by item, then complete the listing.
type settleDeps struct {
	listingRepo    repository.ListingRepository
	escrowRepo     repository.EscrowRepository
	settlementRepo repository.SettlementRepository
	ledger         service.LedgerClient
	registry       service.OwnershipRegistry
	publisher      service.EventPublisher
	fees           *FeeCalculator
}

// loadSettlement returns the settlement record for the listing, or nil when
// none has been written yet.
func (d settleDeps) loadSettlement(ctx context.Context, listingID string) (*entity.SettlementRecord, error) {
	record, err := d.settlementRepo.GetByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, nil
		}
		return nil, errors.Upstream("Failed to read settlement record", err)
	}
	return record, nil
}

// createSaleRecord writes the idempotency-keyed settlement record for a
// sale. A concurrent or earlier write of the same record wins and is
// returned instead.
func (d settleDeps) createSaleRecord(ctx context.Context, listing *entity.Listing, buyerID string, price float64) (*entity.SettlementRecord, error) {
	fees := d.fees.Calculate(price)

	record := &entity.SettlementRecord{
		ID:             listing.ID,
		ListingID:      listing.ID,
		Kind:           listing.Kind,
		SellerID:       listing.SellerID,
		BuyerID:        buyerID,
		Price:          price,
		Currency:       listing.Pricing.Currency,
		Fees:           fees,
		SellerProceeds: price - fees.Total,
		CreatedAt:      time.Now(),
	}

	if err := d.settlementRepo.Create(ctx, record); err != nil {
		if errors.Is(err, "CONFLICT") {
			return d.settlementRepo.GetByID(ctx, listing.ID)
		}
		return nil, errors.Upstream("Failed to write settlement record", err)
	}

	return record, nil
}

// holdAndRecordSale charges a direct purchase: it writes the durable hold
// record first, places the ledger hold against the buyer, then writes the
// settlement record. A failed hold reverts the listing to ACTIVE with no
// side effect; a failure after the hold leaves the listing finalizing for
// the recovery sweep, which resolves the hold from its record and puts the
// listing back on sale.
func holdAndRecordSale(ctx context.Context, d settleDeps, listing *entity.Listing, buyerID string, price float64) (*entity.SettlementRecord, error) {
	currency := listing.Pricing.Currency

	now := time.Now()
	hold := &entity.EscrowHold{
		ID:           listing.ID + ":" + buyerID,
		ListingID:    listing.ID,
		BidderID:     buyerID,
		Amount:       price,
		Currency:     currency,
		LedgerHoldID: uuid.New().String(),
		Status:       entity.EscrowHoldPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.escrowRepo.Create(ctx, hold); err != nil {
		if !errors.Is(err, "CONFLICT") {
			revertToActive(ctx, d, listing)
			return nil, errors.Upstream("Failed to record purchase hold", err)
		}
		// A previous attempt by this buyer left its record behind. If it
		// already captured the funds the sale only needs its settlement
		// record; any other state gets a fresh ledger hold id, since
		// ledger hold ids are single-use.
		existing, getErr := d.escrowRepo.GetByID(ctx, hold.ID)
		if getErr != nil {
			revertToActive(ctx, d, listing)
			return nil, errors.Upstream("Failed to read purchase hold", getErr)
		}
		if existing.Status == entity.EscrowHoldCaptured {
			return d.createSaleRecord(ctx, listing, buyerID, price)
		}
		existing.Amount = price
		existing.Currency = currency
		existing.LedgerHoldID = hold.LedgerHoldID
		existing.Status = entity.EscrowHoldPending
		existing.UpdatedAt = now
		if err := d.escrowRepo.Update(ctx, existing); err != nil {
			revertToActive(ctx, d, listing)
			return nil, errors.Upstream("Failed to record purchase hold", err)
		}
		hold = existing
	}

	if err := d.ledger.Hold(ctx, hold.LedgerHoldID, buyerID, price, currency); err != nil {
		hold.Status = entity.EscrowHoldReleased
		hold.UpdatedAt = time.Now()
		if updateErr := d.escrowRepo.Update(ctx, hold); updateErr != nil {
			logger.Error("Failed to close purchase hold %s: %v", hold.ID, updateErr)
		}
		revertToActive(ctx, d, listing)
		if errors.Is(err, "INSUFFICIENT_FUNDS") {
			return nil, err
		}
		return nil, errors.Upstream("Failed to hold buyer funds", err)
	}

	hold.Status = entity.EscrowHoldActive
	hold.UpdatedAt = time.Now()
	if err := d.escrowRepo.Update(ctx, hold); err != nil {
		// The ledger hold stands and the pending record references it; the
		// recovery sweep resolves both and reverts the listing.
		return nil, errors.Upstream("Failed to record purchase hold", err)
	}

	return d.createSaleRecord(ctx, listing, buyerID, price)
}

func revertToActive(ctx context.Context, d settleDeps, listing *entity.Listing) {
	listing.UpdatedAt = time.Now()
	if err := d.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusActive); err != nil {
		logger.Error("Failed to revert listing %s to active: %v", listing.ID, err)
		return
	}
	listing.Status = entity.ListingStatusActive
}

// completeSale runs a FINALIZING listing with a durable settlement record
// to COMPLETED. Every step is idempotent, so the sweep can retry it after
// any upstream failure without double-charging: the ledger transfer is
// keyed by hold, ownership handover is tracked per item on the record, and
// the final transition is a compare-and-set.
func (d settleDeps) completeSale(ctx context.Context, listing *entity.Listing, record *entity.SettlementRecord, eventType string) error {
	if record.LedgerTxID == "" {
		holds, err := d.escrowRepo.ListOpenByListing(ctx, listing.ID)
		if err != nil {
			return errors.Upstream("Failed to list escrow holds", err)
		}

		var winning *entity.EscrowHold
		for _, hold := range holds {
			if hold.Status == entity.EscrowHoldActive && hold.BidderID == record.BuyerID && hold.Amount == record.Price {
				winning = hold
				break
			}
		}
		if winning == nil {
			return errors.Upstream("Winning escrow hold is missing", nil)
		}

		legs := []service.TransferLeg{
			{Account: record.SellerID, Amount: record.SellerProceeds},
			{Account: PlatformFeeAccount, Amount: record.Fees.Platform},
			{Account: RoyaltyFeeAccount, Amount: record.Fees.Royalty},
			{Account: ServiceFeeAccount, Amount: record.Fees.Service},
		}

		txID, err := d.ledger.Transfer(ctx, winning.LedgerHoldID, legs)
		if err != nil {
			return errors.Upstream("Failed to convert winning hold", err)
		}

		record.LedgerTxID = txID
		if err := d.settlementRepo.Update(ctx, record); err != nil {
			return errors.Upstream("Failed to record ledger transaction", err)
		}

		winning.Status = entity.EscrowHoldCaptured
		winning.UpdatedAt = time.Now()
		if err := d.escrowRepo.Update(ctx, winning); err != nil {
			return errors.Upstream("Failed to update escrow hold record", err)
		}
	}

	// No non-winning hold should remain at this point; re-verify and
	// resolve anything left. On a retry this is also what reconciles a
	// winning hold record that missed its capture mark: the ledger reports
	// the hold converted and the record is brought in line.
	if err := releaseHolds(ctx, d.escrowRepo, d.ledger, listing.ID); err != nil {
		return err
	}

	for _, itemID := range listing.Items() {
		if record.HasTransferred(itemID) {
			continue
		}
		if err := d.registry.TransferOwnership(ctx, itemID, listing.SellerID, record.BuyerID); err != nil {
			return errors.Upstream("Failed to transfer item ownership", err)
		}
		record.ItemsTransferred = append(record.ItemsTransferred, itemID)
		if err := d.settlementRepo.Update(ctx, record); err != nil {
			return errors.Upstream("Failed to record item transfer", err)
		}
	}

	listing.Settlement = &entity.Settlement{
		BuyerID:     record.BuyerID,
		FinalPrice:  record.Price,
		Fees:        record.Fees,
		CompletedAt: time.Now(),
	}
	listing.UpdatedAt = time.Now()

	if err := d.listingRepo.Transition(ctx, listing, entity.ListingStatusFinalizing, entity.ListingStatusCompleted); err != nil {
		return err
	}
	listing.Status = entity.ListingStatusCompleted

	logger.Info("Listing %s completed: buyer=%s price=%.2f proceeds=%.2f", listing.ID, record.BuyerID, record.Price, record.SellerProceeds)
	publishEvent(ctx, d.publisher, eventType, listing.ID, record.BuyerID, map[string]interface{}{
		"buyer_id": record.BuyerID,
		"price":    record.Price,
	})

	return nil
}
