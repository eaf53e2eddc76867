package store

import (
	"context"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/shopspring/decimal"
)

// AnalyticsStore handles the aggregate queries behind the admin and landlord
// dashboards.
type AnalyticsStore struct {
	store *PostgresStore
}

// NewAnalyticsStore creates an analytics store backed by the given Postgres store.
func NewAnalyticsStore(store *PostgresStore) *AnalyticsStore {
	return &AnalyticsStore{store: store}
}

// PlatformStats computes the platform-wide counters for the admin dashboard.
func (a *AnalyticsStore) PlatformStats(ctx context.Context) (*domain.PlatformStats, error) {
	stats := &domain.PlatformStats{
		UsersByRole:         map[string]int{},
		ListingsByStatus:    map[string]int{},
		ApplicationsByState: map[string]int{},
		PaymentVolume:       decimal.Zero,
	}

	var err error
	if stats.UsersByRole, err = a.countBy(ctx, `SELECT role, COUNT(*) FROM user_roles GROUP BY role`); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	if stats.ListingsByStatus, err = a.countBy(ctx, `SELECT status, COUNT(*) FROM listings GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count listings by status: %w", err)
	}
	if stats.ApplicationsByState, err = a.countBy(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}

	paymentQuery := `SELECT COUNT(*), COALESCE(SUM(amount), 0)
	                 FROM payments WHERE status = 'succeeded'`
	if err := a.store.db.QueryRowContext(ctx, paymentQuery).Scan(&stats.PaymentsSucceeded, &stats.PaymentVolume); err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	signupQuery := `SELECT COUNT(*) FROM profiles WHERE created_at > NOW() - INTERVAL '30 days'`
	if err := a.store.db.QueryRowContext(ctx, signupQuery).Scan(&stats.SignupsLast30Days); err != nil {
		return nil, fmt.Errorf("count recent signups: %w", err)
	}

	return stats, nil
}

// LandlordStats computes one landlord's dashboard counters.
func (a *AnalyticsStore) LandlordStats(ctx context.Context, landlordID string) (*domain.LandlordStats, error) {
	stats := &domain.LandlordStats{
		ListingsByStatus: map[string]int{},
		RentCollected:    decimal.Zero,
	}

	var err error
	stats.ListingsByStatus, err = a.countBy(ctx,
		`SELECT status, COUNT(*) FROM listings WHERE landlord_id = $1 GROUP BY status`, landlordID)
	if err != nil {
		return nil, fmt.Errorf("count landlord listings: %w", err)
	}

	appQuery := `SELECT
	                 COUNT(*) FILTER (WHERE a.status = 'pending'),
	                 COUNT(*) FILTER (WHERE a.status = 'approved')
	             FROM applications a
	             JOIN listings l ON l.id = a.listing_id
	             WHERE l.landlord_id = $1`
	if err := a.store.db.QueryRowContext(ctx, appQuery, landlordID).Scan(
		&stats.PendingApplications, &stats.ApprovedTenants,
	); err != nil {
		return nil, fmt.Errorf("count landlord applications: %w", err)
	}

	rentQuery := `SELECT COALESCE(SUM(amount), 0)
	              FROM payments WHERE landlord_id = $1 AND status = 'succeeded'`
	if err := a.store.db.QueryRowContext(ctx, rentQuery, landlordID).Scan(&stats.RentCollected); err != nil {
		return nil, fmt.Errorf("sum landlord rent: %w", err)
	}

	if stats.UnreadMessages, err = a.store.UnreadMessageCount(ctx, landlordID); err != nil {
		return nil, err
	}

	return stats, nil
}

func (a *AnalyticsStore) countBy(ctx context.Context, query string, args ...interface{}) (map[string]int, error) {
	rows, err := a.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
