package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

const listingColumns = `id, landlord_id, title, description, property_type, bedrooms, bathrooms,
	furnished, address, city, state, monthly_rent, currency, status, review_note,
	created_at, updated_at, published_at`

// CreateListing inserts a new listing in draft status.
func (s *PostgresStore) CreateListing(ctx context.Context, l *domain.Listing) (*domain.Listing, error) {
	query := `INSERT INTO listings (landlord_id, title, description, property_type, bedrooms, bathrooms,
	              furnished, address, city, state, monthly_rent, currency, status)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	          RETURNING ` + listingColumns

	created, err := scanListing(s.db.QueryRowContext(ctx, query,
		l.LandlordID, l.Title, l.Description, l.PropertyType, l.Bedrooms, l.Bathrooms,
		l.Furnished, l.Address, l.City, l.State, l.MonthlyRent, l.Currency, l.Status,
	))
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return created, nil
}

// GetListing retrieves a listing with its photos.
func (s *PostgresStore) GetListing(ctx context.Context, id string) (*domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`

	l, err := scanListing(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrListingNotFound
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}

	photos, err := s.listingPhotos(ctx, id)
	if err != nil {
		return nil, err
	}
	l.Photos = photos
	return l, nil
}

// UpdateListing persists the landlord-editable fields.
func (s *PostgresStore) UpdateListing(ctx context.Context, l *domain.Listing) (*domain.Listing, error) {
	query := `UPDATE listings SET title = $1, description = $2, property_type = $3, bedrooms = $4,
	              bathrooms = $5, furnished = $6, address = $7, city = $8, state = $9,
	              monthly_rent = $10, currency = $11, updated_at = NOW()
	          WHERE id = $12
	          RETURNING ` + listingColumns

	updated, err := scanListing(s.db.QueryRowContext(ctx, query,
		l.Title, l.Description, l.PropertyType, l.Bedrooms, l.Bathrooms, l.Furnished,
		l.Address, l.City, l.State, l.MonthlyRent, l.Currency, l.ID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrListingNotFound
		}
		return nil, fmt.Errorf("update listing: %w", err)
	}
	return updated, nil
}

// SetListingStatus moves a listing through its lifecycle. The published
// timestamp is stamped on the first transition to published and kept after.
func (s *PostgresStore) SetListingStatus(ctx context.Context, id, status, reviewNote string) (*domain.Listing, error) {
	query := `UPDATE listings SET status = $1, review_note = $2, updated_at = NOW(),
	              published_at = CASE WHEN $1 = 'published' THEN COALESCE(published_at, NOW()) ELSE published_at END
	          WHERE id = $3
	          RETURNING ` + listingColumns

	updated, err := scanListing(s.db.QueryRowContext(ctx, query, status, reviewNote, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrListingNotFound
		}
		return nil, fmt.Errorf("set listing status: %w", err)
	}
	return updated, nil
}

// DeleteListing removes a listing and its dependent rows via cascade.
func (s *PostgresStore) DeleteListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrListingNotFound
	}
	return nil
}

// SearchListings returns published listings matching the filter, newest first.
func (s *PostgresStore) SearchListings(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = 'published'`
	args := []interface{}{}
	argIdx := 1

	if f.City != "" {
		query += fmt.Sprintf(" AND city ILIKE $%d", argIdx)
		args = append(args, f.City)
		argIdx++
	}
	if f.Query != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+f.Query+"%")
		argIdx++
	}
	if f.MinRent != nil {
		query += fmt.Sprintf(" AND monthly_rent >= $%d", argIdx)
		args = append(args, *f.MinRent)
		argIdx++
	}
	if f.MaxRent != nil {
		query += fmt.Sprintf(" AND monthly_rent <= $%d", argIdx)
		args = append(args, *f.MaxRent)
		argIdx++
	}
	if f.MinBedrooms > 0 {
		query += fmt.Sprintf(" AND bedrooms >= $%d", argIdx)
		args = append(args, f.MinBedrooms)
		argIdx++
	}

	query += " ORDER BY published_at DESC NULLS LAST"

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	return s.queryListings(ctx, query, args...)
}

// ListingsByLandlord returns all of one landlord's listings regardless of status.
func (s *PostgresStore) ListingsByLandlord(ctx context.Context, landlordID string) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE landlord_id = $1 ORDER BY created_at DESC`
	return s.queryListings(ctx, query, landlordID)
}

// ListingsByStatus returns listings in a given status, oldest first, so the
// admin review queue is worked in submission order.
func (s *PostgresStore) ListingsByStatus(ctx context.Context, status string) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE status = $1 ORDER BY updated_at ASC`
	return s.queryListings(ctx, query, status)
}

func (s *PostgresStore) queryListings(ctx context.Context, query string, args ...interface{}) ([]domain.Listing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingRows(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func scanListing(row *sql.Row) (*domain.Listing, error) {
	var (
		l           domain.Listing
		publishedAt sql.NullTime
	)
	err := row.Scan(&l.ID, &l.LandlordID, &l.Title, &l.Description, &l.PropertyType,
		&l.Bedrooms, &l.Bathrooms, &l.Furnished, &l.Address, &l.City, &l.State,
		&l.MonthlyRent, &l.Currency, &l.Status, &l.ReviewNote,
		&l.CreatedAt, &l.UpdatedAt, &publishedAt)
	if err != nil {
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		l.PublishedAt = &t
	}
	return &l, nil
}

func scanListingRows(rows *sql.Rows) (*domain.Listing, error) {
	var (
		l           domain.Listing
		publishedAt sql.NullTime
	)
	err := rows.Scan(&l.ID, &l.LandlordID, &l.Title, &l.Description, &l.PropertyType,
		&l.Bedrooms, &l.Bathrooms, &l.Furnished, &l.Address, &l.City, &l.State,
		&l.MonthlyRent, &l.Currency, &l.Status, &l.ReviewNote,
		&l.CreatedAt, &l.UpdatedAt, &publishedAt)
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		l.PublishedAt = &t
	}
	return &l, nil
}

// --- Listing photos ---

// AddListingPhoto records an uploaded photo. Position is appended at the end.
func (s *PostgresStore) AddListingPhoto(ctx context.Context, p *domain.ListingPhoto) (*domain.ListingPhoto, error) {
	query := `INSERT INTO listing_photos (listing_id, storage_key, content_type, position)
	          VALUES ($1, $2, $3,
	              (SELECT COALESCE(MAX(position), -1) + 1 FROM listing_photos WHERE listing_id = $1))
	          RETURNING id, listing_id, storage_key, content_type, position, created_at`

	var created domain.ListingPhoto
	err := s.db.QueryRowContext(ctx, query, p.ListingID, p.StorageKey, p.ContentType).Scan(
		&created.ID, &created.ListingID, &created.StorageKey, &created.ContentType,
		&created.Position, &created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("add listing photo: %w", err)
	}
	return &created, nil
}

// RemoveListingPhoto deletes a photo row and returns it so the caller can
// clean up the stored file.
func (s *PostgresStore) RemoveListingPhoto(ctx context.Context, listingID, photoID string) (*domain.ListingPhoto, error) {
	query := `DELETE FROM listing_photos WHERE id = $1 AND listing_id = $2
	          RETURNING id, listing_id, storage_key, content_type, position, created_at`

	var p domain.ListingPhoto
	err := s.db.QueryRowContext(ctx, query, photoID, listingID).Scan(
		&p.ID, &p.ListingID, &p.StorageKey, &p.ContentType, &p.Position, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrListingNotFound
		}
		return nil, fmt.Errorf("remove listing photo: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) listingPhotos(ctx context.Context, listingID string) ([]domain.ListingPhoto, error) {
	query := `SELECT id, listing_id, storage_key, content_type, position, created_at
	          FROM listing_photos WHERE listing_id = $1 ORDER BY position`

	rows, err := s.db.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("list listing photos: %w", err)
	}
	defer rows.Close()

	var photos []domain.ListingPhoto
	for rows.Next() {
		var p domain.ListingPhoto
		if err := rows.Scan(&p.ID, &p.ListingID, &p.StorageKey, &p.ContentType, &p.Position, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listing photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}
