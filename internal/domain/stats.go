package domain

import "github.com/shopspring/decimal"

// PlatformStats is the admin console's aggregate view of the marketplace.
type PlatformStats struct {
	UsersByRole         map[string]int  `json:"users_by_role"`
	ListingsByStatus    map[string]int  `json:"listings_by_status"`
	ApplicationsByState map[string]int  `json:"applications_by_status"`
	PaymentsSucceeded   int             `json:"payments_succeeded"`
	PaymentVolume       decimal.Decimal `json:"payment_volume"`
	SignupsLast30Days   int             `json:"signups_last_30_days"`
}

// LandlordStats is the per-landlord dashboard aggregate.
type LandlordStats struct {
	ListingsByStatus    map[string]int  `json:"listings_by_status"`
	PendingApplications int             `json:"pending_applications"`
	ApprovedTenants     int             `json:"approved_tenants"`
	RentCollected       decimal.Decimal `json:"rent_collected"`
	UnreadMessages      int             `json:"unread_messages"`
}
