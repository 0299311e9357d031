package entity

import (
	"time"
)

type RentalContractStatus string

const (
	RentalContractActive    RentalContractStatus = "active"
	RentalContractExpired   RentalContractStatus = "expired"
	RentalContractCancelled RentalContractStatus = "cancelled"
)

// RentalContract records a fixed-term usage-rights grant over an item.
// Ownership of record never changes while a contract is live.
type RentalContract struct {
	ID           string               `json:"id" firestore:"id"`
	RenterID     string               `json:"renter_id" firestore:"renterId"`
	Start        time.Time            `json:"start" firestore:"start"`
	End          time.Time            `json:"end" firestore:"end"`
	PeriodDays   int                  `json:"period_days" firestore:"periodDays"`
	TotalPaid    float64              `json:"total_paid" firestore:"totalPaid"`
	Status       RentalContractStatus `json:"status" firestore:"status"`
	AutoRenewal  bool                 `json:"auto_renewal" firestore:"autoRenewal"`
	RenewalCount int                  `json:"renewal_count" firestore:"renewalCount"`
}
