package usecase

import (
	"tradepost/internal/domain/entity"
	"tradepost/internal/domain/service"
)

// Observed business rates: platform 2.5%, royalty 5%, service 0.5%.
const (
	DefaultPlatformFeeRate = 0.025
	DefaultRoyaltyFeeRate  = 0.05
	DefaultServiceFeeRate  = 0.005
)

// Fee recipient accounts on the ledger.
const (
	PlatformFeeAccount = "treasury:platform"
	RoyaltyFeeAccount  = "treasury:royalty"
	ServiceFeeAccount  = "treasury:service"
)

type FeeRates struct {
	Platform float64
	Royalty  float64
	Service  float64
}

func DefaultFeeRates() FeeRates {
	return FeeRates{
		Platform: DefaultPlatformFeeRate,
		Royalty:  DefaultRoyaltyFeeRate,
		Service:  DefaultServiceFeeRate,
	}
}

// FeeCalculator is pure and stateless. Fees come out of the seller's
// proceeds, never on top of the buyer's price.
type FeeCalculator struct {
	rates FeeRates
}

func NewFeeCalculator(rates FeeRates) *FeeCalculator {
	return &FeeCalculator{rates: rates}
}

func (f *FeeCalculator) Calculate(price float64) entity.FeeBreakdown {
	platform := price * f.rates.Platform
	royalty := price * f.rates.Royalty
	svc := price * f.rates.Service

	return entity.FeeBreakdown{
		Platform: platform,
		Royalty:  royalty,
		Service:  svc,
		Total:    platform + royalty + svc,
	}
}

// SettlementLegs splits a settlement price into ledger transfer legs: the
// seller's net proceeds plus one leg per fee recipient. The legs always sum
// to the price.
func (f *FeeCalculator) SettlementLegs(sellerAccount string, price float64) ([]service.TransferLeg, entity.FeeBreakdown) {
	fees := f.Calculate(price)

	legs := []service.TransferLeg{
		{Account: sellerAccount, Amount: price - fees.Total},
		{Account: PlatformFeeAccount, Amount: fees.Platform},
		{Account: RoyaltyFeeAccount, Amount: fees.Royalty},
		{Account: ServiceFeeAccount, Amount: fees.Service},
	}

	return legs, fees
}
