package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/repository"
	"tradepost/internal/domain/service"
	"tradepost/pkg/errors"
	"tradepost/pkg/logger"
)

const dueRentalBatchSize = 100

type RentalUseCase struct {
	settleDeps
	locks *listingLocks
}

func NewRentalUseCase(
	listingRepo repository.ListingRepository,
	escrowRepo repository.EscrowRepository,
	settlementRepo repository.SettlementRepository,
	ledger service.LedgerClient,
	registry service.OwnershipRegistry,
	publisher service.EventPublisher,
	fees *FeeCalculator,
	locks *listingLocks,
) *RentalUseCase {
	return &RentalUseCase{
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

type CreateRentalInput struct {
	ItemID        string  `json:"item_id"`
	Currency      string  `json:"currency"`
	RatePerDay    float64 `json:"rate_per_day"`
	MinPeriodDays int     `json:"min_period_days"`
	MaxPeriodDays int     `json:"max_period_days"`
}

// CreateRental exposes an item for fixed-term lease without transferring
// ownership.
func (uc *RentalUseCase) CreateRental(ctx context.Context, sellerID string, input CreateRentalInput) (*entity.Listing, error) {
	if input.ItemID == "" {
		return nil, errors.BadRequest("Item id is required", nil)
	}
	if input.RatePerDay < 0 {
		return nil, errors.BadRequest("Rental rate must not be negative", nil)
	}
	if input.MinPeriodDays < 1 {
		return nil, errors.BadRequest("Minimum rental period must be at least one day", nil)
	}
	if input.MaxPeriodDays < input.MinPeriodDays {
		return nil, errors.BadRequest("Maximum rental period must not be below the minimum", nil)
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
	rate := input.RatePerDay
	listing := &entity.Listing{
		ID:       uuid.New().String(),
		SellerID: sellerID,
		ItemID:   input.ItemID,
		Kind:     entity.ListingKindRental,
		Status:   entity.ListingStatusActive,
		Pricing: entity.Pricing{
			Currency:         currency,
			RentalRatePerDay: &rate,
		},
		Rental: &entity.RentalState{
			MinPeriodDays: input.MinPeriodDays,
			MaxPeriodDays: input.MaxPeriodDays,
			Contracts:     []entity.RentalContract{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.listingRepo.Create(ctx, listing); err != nil {
		return nil, err
	}

	logger.Info("Rental listing %s created: item=%s rate=%.2f/day seller=%s", listing.ID, input.ItemID, rate, sellerID)
	publishEvent(ctx, uc.publisher, service.EventListingCreated, listing.ID, sellerID, map[string]interface{}{
		"kind":    string(entity.ListingKindRental),
		"item_id": input.ItemID,
	})

	return listing, nil
}

// AcceptRental charges the renter rate x period up front, creates the
// contract and grants temporary-use rights. The owner of record does not
// change.
func (uc *RentalUseCase) AcceptRental(ctx context.Context, renterID, listingID string, periodDays int, autoRenewal bool) (*entity.RentalContract, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if listing.Kind != entity.ListingKindRental || listing.Rental == nil {
		return nil, errors.InvalidState("Listing is not a rental", nil)
	}
	if listing.Status != entity.ListingStatusActive {
		return nil, errors.InvalidState("Rental listing is not active", nil)
	}
	if renterID == listing.SellerID {
		return nil, errors.Forbidden("Sellers cannot rent their own item", nil)
	}
	if periodDays < listing.Rental.MinPeriodDays || periodDays > listing.Rental.MaxPeriodDays {
		return nil, errors.BadRequest("Rental period is outside the allowed range", nil)
	}

	rate := *listing.Pricing.RentalRatePerDay
	totalCost := rate * float64(periodDays)
	currency := listing.Pricing.Currency

	contractID := uuid.New().String()
	txID, fees, err := uc.chargeRent(ctx, listing, renterID, contractID, totalCost, currency)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	contract := entity.RentalContract{
		ID:          contractID,
		RenterID:    renterID,
		Start:       now,
		End:         now.AddDate(0, 0, periodDays),
		PeriodDays:  periodDays,
		TotalPaid:   totalCost,
		Status:      entity.RentalContractActive,
		AutoRenewal: autoRenewal,
	}

	listing.Rental.Contracts = append(listing.Rental.Contracts, contract)
	listing.Rental.TotalRevenue += totalCost
	recomputeNextExpiry(listing.Rental)
	listing.UpdatedAt = now

	if err := uc.listingRepo.UpdateActive(ctx, listing); err != nil {
		// The renter was charged; the settlement record with tx id %s is
		// the audit trail for support to reconcile from.
		logger.Error("Failed to persist rental contract %s after charge (tx %s): %v", contractID, txID, err)
		return nil, errors.Upstream("Failed to persist rental contract", err)
	}

	if err := uc.registry.GrantTemporaryUse(ctx, listing.ItemID, renterID, contract.End); err != nil {
		logger.Warn("Failed to grant temporary use for contract %s: %v", contractID, err)
	}

	logger.Info("Rental contract %s accepted: listing=%s renter=%s total=%.2f days=%d", contractID, listingID, renterID, totalCost, periodDays)
	publishEvent(ctx, uc.publisher, service.EventRentalAccepted, listingID, renterID, map[string]interface{}{
		"contract_id": contractID,
		"total_cost":  totalCost,
		"fees":        fees.Total,
	})

	return &contract, nil
}

// EndRental terminates a contract early. Either the renter or the listing
// seller may end it; there is no refund for the unused term.
func (uc *RentalUseCase) EndRental(ctx context.Context, actorID, listingID, contractID string) (*entity.RentalContract, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Kind != entity.ListingKindRental || listing.Rental == nil {
		return nil, errors.InvalidState("Listing is not a rental", nil)
	}

	var contract *entity.RentalContract
	for i := range listing.Rental.Contracts {
		if listing.Rental.Contracts[i].ID == contractID {
			contract = &listing.Rental.Contracts[i]
			break
		}
	}
	if contract == nil {
		return nil, errors.NotFound("Rental contract", nil)
	}
	if actorID != contract.RenterID && actorID != listing.SellerID {
		return nil, errors.Forbidden("Only the renter or the seller can end this contract", nil)
	}
	if contract.Status != entity.RentalContractActive {
		return nil, errors.InvalidState("Rental contract is not active", nil)
	}

	contract.Status = entity.RentalContractCancelled
	recomputeNextExpiry(listing.Rental)
	listing.UpdatedAt = time.Now()

	if err := uc.listingRepo.UpdateActive(ctx, listing); err != nil {
		return nil, err
	}

	if err := uc.registry.RevokeTemporaryUse(ctx, listing.ItemID, contract.RenterID); err != nil {
		logger.Warn("Failed to revoke temporary use for contract %s: %v", contractID, err)
	}

	logger.Info("Rental contract %s ended early by %s", contractID, actorID)
	publishEvent(ctx, uc.publisher, service.EventRentalEnded, listingID, actorID, map[string]interface{}{
		"contract_id": contractID,
		"reason":      "cancelled",
	})

	return contract, nil
}

// ExpireDueRentals is the scheduler sweep over contracts whose end date has
// elapsed. Auto-renewing contracts are re-charged and extended; a failed
// re-charge falls back to expiry. Expired contracts lose their
// temporary-use grant.
func (uc *RentalUseCase) ExpireDueRentals(ctx context.Context) (int, error) {
	due, err := uc.listingRepo.ListRentalsDue(ctx, time.Now(), dueRentalBatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, listing := range due {
		n, err := uc.sweepListing(ctx, listing.ID)
		if err != nil {
			logger.LogSweepError("rental-expiry", listing.ID, err)
			continue
		}
		processed += n
	}

	return processed, nil
}

func (uc *RentalUseCase) sweepListing(ctx context.Context, listingID string) (int, error) {
	unlock := uc.locks.Lock(listingID)
	defer unlock()

	listing, err := uc.listingRepo.GetByID(ctx, listingID)
	if err != nil {
		return 0, err
	}
	if listing.Kind != entity.ListingKindRental || listing.Rental == nil || listing.Status != entity.ListingStatusActive {
		return 0, nil
	}

	now := time.Now()
	processed := 0

	for i := range listing.Rental.Contracts {
		contract := &listing.Rental.Contracts[i]
		if contract.Status != entity.RentalContractActive || contract.End.After(now) {
			continue
		}

		if contract.AutoRenewal && uc.renewContract(ctx, listing, contract) {
			processed++
			continue
		}

		contract.Status = entity.RentalContractExpired
		if err := uc.registry.RevokeTemporaryUse(ctx, listing.ItemID, contract.RenterID); err != nil {
			logger.Warn("Failed to revoke temporary use for contract %s: %v", contract.ID, err)
		}
		publishEvent(ctx, uc.publisher, service.EventRentalEnded, listing.ID, "", map[string]interface{}{
			"contract_id": contract.ID,
			"reason":      "expired",
		})
		processed++
	}

	recomputeNextExpiry(listing.Rental)
	listing.UpdatedAt = now

	if err := uc.listingRepo.UpdateActive(ctx, listing); err != nil {
		return processed, err
	}

	return processed, nil
}

// renewContract re-charges an auto-renewing contract and extends it by its
// original period. Returns false when the re-charge fails, in which case
// the caller expires the contract instead.
func (uc *RentalUseCase) renewContract(ctx context.Context, listing *entity.Listing, contract *entity.RentalContract) bool {
	rate := *listing.Pricing.RentalRatePerDay
	total := rate * float64(contract.PeriodDays)
	recordID := fmt.Sprintf("%s-renewal-%d", contract.ID, contract.RenewalCount+1)

	_, _, err := uc.chargeRent(ctx, listing, contract.RenterID, recordID, total, listing.Pricing.Currency)
	if err != nil {
		logger.Info("Auto-renewal re-charge failed for contract %s: %v", contract.ID, err)
		return false
	}

	contract.End = contract.End.AddDate(0, 0, contract.PeriodDays)
	contract.RenewalCount++
	contract.TotalPaid += total
	listing.Rental.TotalRevenue += total

	if err := uc.registry.GrantTemporaryUse(ctx, listing.ItemID, contract.RenterID, contract.End); err != nil {
		logger.Warn("Failed to extend temporary use for contract %s: %v", contract.ID, err)
	}

	logger.Info("Rental contract %s renewed: total=%.2f renewals=%d", contract.ID, total, contract.RenewalCount)
	return true
}

// chargeRent moves a rental payment renter-to-seller (minus fees) and
// writes the append-only settlement record keyed by the contract. The
// record is the idempotency key: a charge that already went through under
// this record id is returned as-is, so a sweep retrying after a failed
// contract persist never charges the renter twice.
func (uc *RentalUseCase) chargeRent(ctx context.Context, listing *entity.Listing, renterID, recordID string, total float64, currency string) (string, entity.FeeBreakdown, error) {
	existing, err := uc.settlementRepo.GetByID(ctx, recordID)
	if err == nil {
		return existing.LedgerTxID, existing.Fees, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return "", entity.FeeBreakdown{}, errors.Upstream("Failed to read rental settlement record", err)
	}

	// The hold id is derived from the record id, so a retry of a charge
	// that crashed between hold and transfer resumes the same hold instead
	// of stranding it.
	holdID := recordID + ":hold"
	if err := uc.ledger.Hold(ctx, holdID, renterID, total, currency); err != nil {
		if errors.Is(err, "INSUFFICIENT_FUNDS") {
			return "", entity.FeeBreakdown{}, err
		}
		return "", entity.FeeBreakdown{}, errors.Upstream("Failed to hold rental payment", err)
	}

	legs, fees := uc.fees.SettlementLegs(listing.SellerID, total)
	txID, err := uc.ledger.Transfer(ctx, holdID, legs)
	if err != nil {
		if releaseErr := uc.ledger.Release(ctx, holdID); releaseErr != nil {
			logger.Error("Failed to release rental hold %s: %v", holdID, releaseErr)
		}
		return "", entity.FeeBreakdown{}, errors.Upstream("Failed to transfer rental payment", err)
	}

	record := &entity.SettlementRecord{
		ID:             recordID,
		ListingID:      listing.ID,
		Kind:           entity.ListingKindRental,
		SellerID:       listing.SellerID,
		BuyerID:        renterID,
		Price:          total,
		Currency:       currency,
		Fees:           fees,
		SellerProceeds: total - fees.Total,
		LedgerTxID:     txID,
		CreatedAt:      time.Now(),
	}
	if err := uc.settlementRepo.Create(ctx, record); err != nil {
		// Money moved; the record is the audit trail, so this is loud.
		logger.Error("Failed to write rental settlement record %s (tx %s): %v", recordID, txID, err)
	}

	return txID, fees, nil
}

func recomputeNextExpiry(state *entity.RentalState) {
	var next *time.Time
	for i := range state.Contracts {
		contract := &state.Contracts[i]
		if contract.Status != entity.RentalContractActive {
			continue
		}
		if next == nil || contract.End.Before(*next) {
			end := contract.End
			next = &end
		}
	}
	state.NextExpiry = next
}
