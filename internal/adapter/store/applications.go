package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

const applicationColumns = `id, listing_id, renter_id, message, move_in_date, status, decision_note, created_at, updated_at`

// CreateApplication submits a rental application. A second live application
// for the same (listing, renter) pair hits the partial unique index and
// returns port.ErrDuplicateApplication.
func (s *PostgresStore) CreateApplication(ctx context.Context, a *domain.Application) (*domain.Application, error) {
	query := `INSERT INTO applications (listing_id, renter_id, message, move_in_date, status)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING ` + applicationColumns

	created, err := scanApplication(s.db.QueryRowContext(ctx, query,
		a.ListingID, a.RenterID, a.Message, a.MoveInDate, a.Status,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, port.ErrDuplicateApplication
		}
		return nil, fmt.Errorf("create application: %w", err)
	}
	return created, nil
}

// GetApplication retrieves one application.
func (s *PostgresStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`

	a, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

// SetApplicationStatus transitions an application out of pending. Only pending
// applications can be decided, so a repeat decision affects zero rows.
func (s *PostgresStore) SetApplicationStatus(ctx context.Context, id, status, note string) (*domain.Application, error) {
	query := `UPDATE applications SET status = $1, decision_note = $2, updated_at = NOW()
	          WHERE id = $3 AND status = 'pending'
	          RETURNING ` + applicationColumns

	updated, err := scanApplication(s.db.QueryRowContext(ctx, query, status, note, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrApplicationNotFound
		}
		return nil, fmt.Errorf("set application status: %w", err)
	}
	return updated, nil
}

// ApplicationsByRenter returns a renter's applications, newest first.
func (s *PostgresStore) ApplicationsByRenter(ctx context.Context, renterID string) ([]domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
	          WHERE renter_id = $1 ORDER BY created_at DESC`
	return s.queryApplications(ctx, query, renterID)
}

// ApplicationsByListing returns applications for one listing, oldest first,
// so landlords see them in arrival order.
func (s *PostgresStore) ApplicationsByListing(ctx context.Context, listingID string) ([]domain.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
	          WHERE listing_id = $1 ORDER BY created_at ASC`
	return s.queryApplications(ctx, query, listingID)
}

// ApplicationsByLandlord returns pending applications across all of a
// landlord's listings.
func (s *PostgresStore) ApplicationsByLandlord(ctx context.Context, landlordID string) ([]domain.Application, error) {
	query := `SELECT a.id, a.listing_id, a.renter_id, a.message, a.move_in_date, a.status, a.decision_note, a.created_at, a.updated_at
	          FROM applications a
	          JOIN listings l ON l.id = a.listing_id
	          WHERE l.landlord_id = $1 AND a.status = 'pending'
	          ORDER BY a.created_at ASC`
	return s.queryApplications(ctx, query, landlordID)
}

func (s *PostgresStore) queryApplications(ctx context.Context, query string, args ...interface{}) ([]domain.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		var a domain.Application
		if err := rows.Scan(&a.ID, &a.ListingID, &a.RenterID, &a.Message, &a.MoveInDate,
			&a.Status, &a.DecisionNote, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func scanApplication(row *sql.Row) (*domain.Application, error) {
	var a domain.Application
	err := row.Scan(&a.ID, &a.ListingID, &a.RenterID, &a.Message, &a.MoveInDate,
		&a.Status, &a.DecisionNote, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
