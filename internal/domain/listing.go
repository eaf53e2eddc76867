package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing represents a rental property published by a landlord.
type Listing struct {
	ID           string          `json:"id"            db:"id"`
	LandlordID   string          `json:"landlord_id"   db:"landlord_id"`
	Title        string          `json:"title"         db:"title"`
	Description  string          `json:"description"   db:"description"`
	PropertyType string          `json:"property_type" db:"property_type"`
	Bedrooms     int             `json:"bedrooms"      db:"bedrooms"`
	Bathrooms    int             `json:"bathrooms"     db:"bathrooms"`
	Furnished    bool            `json:"furnished"     db:"furnished"`
	Address      string          `json:"address"       db:"address"`
	City         string          `json:"city"          db:"city"`
	State        string          `json:"state"         db:"state"`
	MonthlyRent  decimal.Decimal `json:"monthly_rent"  db:"monthly_rent"`
	Currency     string          `json:"currency"      db:"currency"`
	Status       string          `json:"status"        db:"status"` // draft, pending_review, published, rejected, archived
	ReviewNote   string          `json:"review_note,omitempty" db:"review_note"`
	CreatedAt    time.Time       `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"    db:"updated_at"`
	PublishedAt  *time.Time      `json:"published_at,omitempty" db:"published_at"`
	Photos       []ListingPhoto  `json:"photos,omitempty"`
}

// Listing status constants.
const (
	ListingStatusDraft         = "draft"
	ListingStatusPendingReview = "pending_review"
	ListingStatusPublished     = "published"
	ListingStatusRejected      = "rejected"
	ListingStatusArchived      = "archived"
)

// ListingPhoto is one stored photo attached to a listing.
type ListingPhoto struct {
	ID          string    `json:"id"           db:"id"`
	ListingID   string    `json:"listing_id"   db:"listing_id"`
	StorageKey  string    `json:"storage_key"  db:"storage_key"`
	ContentType string    `json:"content_type" db:"content_type"`
	Position    int       `json:"position"     db:"position"`
	CreatedAt   time.Time `json:"created_at"   db:"created_at"`
}

// ListingFilter narrows a browse/search query over published listings.
// Zero values mean "no constraint".
type ListingFilter struct {
	City        string
	Query       string
	MinRent     *decimal.Decimal
	MaxRent     *decimal.Decimal
	MinBedrooms int
	Limit       int
	Offset      int
}
