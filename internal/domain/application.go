package domain

import "time"

// Application is a renter's rental application against a published listing.
// At most one non-withdrawn application exists per (listing, renter) pair.
type Application struct {
	ID           string    `json:"id"            db:"id"`
	ListingID    string    `json:"listing_id"    db:"listing_id"`
	RenterID     string    `json:"renter_id"     db:"renter_id"`
	Message      string    `json:"message"       db:"message"`
	MoveInDate   time.Time `json:"move_in_date"  db:"move_in_date"`
	Status       string    `json:"status"        db:"status"` // pending, approved, declined, withdrawn
	DecisionNote string    `json:"decision_note,omitempty" db:"decision_note"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"    db:"updated_at"`
}

// Application status constants.
const (
	ApplicationStatusPending   = "pending"
	ApplicationStatusApproved  = "approved"
	ApplicationStatusDeclined  = "declined"
	ApplicationStatusWithdrawn = "withdrawn"
)
