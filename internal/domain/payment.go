package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one simulated rent payment for an approved application.
type Payment struct {
	ID            string          `json:"id"             db:"id"`
	ApplicationID string          `json:"application_id" db:"application_id"`
	ListingID     string          `json:"listing_id"     db:"listing_id"`
	RenterID      string          `json:"renter_id"      db:"renter_id"`
	LandlordID    string          `json:"landlord_id"    db:"landlord_id"`
	Amount        decimal.Decimal `json:"amount"         db:"amount"`
	Currency      string          `json:"currency"       db:"currency"`
	Status        string          `json:"status"         db:"status"` // pending, processing, succeeded, failed, refunded
	Receipt       string          `json:"receipt,omitempty"        db:"receipt"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"     db:"updated_at"`
}

// Payment status constants.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusSucceeded  = "succeeded"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)
