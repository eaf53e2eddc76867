package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

const paymentColumns = `id, application_id, listing_id, renter_id, landlord_id, amount, currency,
	status, receipt, failure_reason, created_at, updated_at`

// CreatePayment inserts a payment in pending status.
func (s *PostgresStore) CreatePayment(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	query := `INSERT INTO payments (application_id, listing_id, renter_id, landlord_id, amount, currency, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING ` + paymentColumns

	created, err := scanPayment(s.db.QueryRowContext(ctx, query,
		p.ApplicationID, p.ListingID, p.RenterID, p.LandlordID, p.Amount, p.Currency, p.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return created, nil
}

// GetPayment retrieves one payment.
func (s *PostgresStore) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// SetPaymentStatus updates status plus the gateway receipt or failure reason.
func (s *PostgresStore) SetPaymentStatus(ctx context.Context, id, status, receipt, failureReason string) (*domain.Payment, error) {
	query := `UPDATE payments SET status = $1, receipt = $2, failure_reason = $3, updated_at = NOW()
	          WHERE id = $4
	          RETURNING ` + paymentColumns

	updated, err := scanPayment(s.db.QueryRowContext(ctx, query, status, receipt, failureReason, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("set payment status: %w", err)
	}
	return updated, nil
}

// PaymentsByRenter returns a renter's payments, newest first.
func (s *PostgresStore) PaymentsByRenter(ctx context.Context, renterID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE renter_id = $1 ORDER BY created_at DESC`
	return s.queryPayments(ctx, query, renterID)
}

// PaymentsByLandlord returns payments flowing to a landlord, newest first.
func (s *PostgresStore) PaymentsByLandlord(ctx context.Context, landlordID string) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE landlord_id = $1 ORDER BY created_at DESC`
	return s.queryPayments(ctx, query, landlordID)
}

func (s *PostgresStore) queryPayments(ctx context.Context, query string, args ...interface{}) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.ApplicationID, &p.ListingID, &p.RenterID, &p.LandlordID,
			&p.Amount, &p.Currency, &p.Status, &p.Receipt, &p.FailureReason,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row *sql.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.ApplicationID, &p.ListingID, &p.RenterID, &p.LandlordID,
		&p.Amount, &p.Currency, &p.Status, &p.Receipt, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
