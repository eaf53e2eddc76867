package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
)

// ListingInput carries the landlord-editable listing fields.
type ListingInput struct {
	Title        string
	Description  string
	PropertyType string
	Bedrooms     int
	Bathrooms    int
	Furnished    bool
	Address      string
	City         string
	State        string
	MonthlyRent  decimal.Decimal
	Currency     string
}

// ListingService manages the listing lifecycle: drafting, review, publishing,
// search, and photos.
type ListingService struct {
	store           *store.PostgresStore
	files           port.FileStore
	bus             *realtime.Bus
	defaultCurrency string
}

// NewListingService creates a new listing service.
func NewListingService(s *store.PostgresStore, files port.FileStore, bus *realtime.Bus, defaultCurrency string) *ListingService {
	return &ListingService{store: s, files: files, bus: bus, defaultCurrency: defaultCurrency}
}

// CreateListing drafts a new listing for the landlord.
func (s *ListingService) CreateListing(ctx context.Context, landlordID string, in ListingInput) (*domain.Listing, error) {
	currency := in.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}

	listing := &domain.Listing{
		LandlordID:   landlordID,
		Title:        in.Title,
		Description:  in.Description,
		PropertyType: in.PropertyType,
		Bedrooms:     in.Bedrooms,
		Bathrooms:    in.Bathrooms,
		Furnished:    in.Furnished,
		Address:      in.Address,
		City:         in.City,
		State:        in.State,
		MonthlyRent:  in.MonthlyRent,
		Currency:     currency,
		Status:       domain.ListingStatusDraft,
	}
	return s.store.CreateListing(ctx, listing)
}

// UpdateListing edits a listing the landlord owns. Published listings drop
// back to draft on edit so changes pass review again.
func (s *ListingService) UpdateListing(ctx context.Context, landlordID, listingID string, in ListingInput) (*domain.Listing, error) {
	listing, err := s.ownedListing(ctx, landlordID, listingID)
	if err != nil {
		return nil, err
	}

	listing.Title = in.Title
	listing.Description = in.Description
	listing.PropertyType = in.PropertyType
	listing.Bedrooms = in.Bedrooms
	listing.Bathrooms = in.Bathrooms
	listing.Furnished = in.Furnished
	listing.Address = in.Address
	listing.City = in.City
	listing.State = in.State
	listing.MonthlyRent = in.MonthlyRent
	if in.Currency != "" {
		listing.Currency = in.Currency
	}

	updated, err := s.store.UpdateListing(ctx, listing)
	if err != nil {
		return nil, err
	}

	if updated.Status == domain.ListingStatusPublished {
		return s.store.SetListingStatus(ctx, updated.ID, domain.ListingStatusDraft, "")
	}
	return updated, nil
}

// SubmitForReview moves a draft or rejected listing into the review queue.
func (s *ListingService) SubmitForReview(ctx context.Context, landlordID, listingID string) (*domain.Listing, error) {
	listing, err := s.ownedListing(ctx, landlordID, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusDraft && listing.Status != domain.ListingStatusRejected {
		return nil, fmt.Errorf("listing %s not submittable from %s: %w", listingID, listing.Status, port.ErrForbidden)
	}
	return s.store.SetListingStatus(ctx, listingID, domain.ListingStatusPendingReview, "")
}

// ReviewListing is the admin decision on a pending listing: publish or reject.
// The landlord is notified either way.
func (s *ListingService) ReviewListing(ctx context.Context, listingID string, approve bool, note string) (*domain.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusPendingReview {
		return nil, fmt.Errorf("listing %s not in review: %w", listingID, port.ErrForbidden)
	}

	status := domain.ListingStatusPublished
	if !approve {
		status = domain.ListingStatusRejected
	}
	updated, err := s.store.SetListingStatus(ctx, listingID, status, note)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(listing.LandlordID, realtime.EventListingReviewed, updated)
	return updated, nil
}

// ArchiveListing takes a listing off the market.
func (s *ListingService) ArchiveListing(ctx context.Context, landlordID, listingID string) (*domain.Listing, error) {
	if _, err := s.ownedListing(ctx, landlordID, listingID); err != nil {
		return nil, err
	}
	return s.store.SetListingStatus(ctx, listingID, domain.ListingStatusArchived, "")
}

// DeleteListing removes a listing and its photo files.
func (s *ListingService) DeleteListing(ctx context.Context, landlordID, listingID string) error {
	listing, err := s.ownedListing(ctx, landlordID, listingID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteListing(ctx, listingID); err != nil {
		return err
	}
	for _, photo := range listing.Photos {
		if err := s.files.Remove(ctx, photo.StorageKey); err != nil {
			slog.Warn("orphaned photo file", "key", photo.StorageKey, "error", err)
		}
	}
	return nil
}

// GetListing returns a listing visible to the viewer: published listings are
// public, everything else only to the owner.
func (s *ListingService) GetListing(ctx context.Context, viewerID, listingID string) (*domain.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusPublished && listing.LandlordID != viewerID {
		return nil, port.ErrListingNotFound
	}
	return listing, nil
}

// Search returns published listings matching the filter.
func (s *ListingService) Search(ctx context.Context, f domain.ListingFilter) ([]domain.Listing, error) {
	return s.store.SearchListings(ctx, f)
}

// MyListings returns all of the landlord's listings.
func (s *ListingService) MyListings(ctx context.Context, landlordID string) ([]domain.Listing, error) {
	return s.store.ListingsByLandlord(ctx, landlordID)
}

// ReviewQueue returns listings waiting for admin review, oldest first.
func (s *ListingService) ReviewQueue(ctx context.Context) ([]domain.Listing, error) {
	return s.store.ListingsByStatus(ctx, domain.ListingStatusPendingReview)
}

// AddPhoto stores an uploaded photo and records it on the listing.
func (s *ListingService) AddPhoto(ctx context.Context, landlordID, listingID, filename, contentType string, r io.Reader) (*domain.ListingPhoto, error) {
	if _, err := s.ownedListing(ctx, landlordID, listingID); err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(filename))
	key := fmt.Sprintf("listings/%s/%s%s", listingID, uuid.NewString(), ext)
	if err := s.files.Save(ctx, key, r); err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}

	photo, err := s.store.AddListingPhoto(ctx, &domain.ListingPhoto{
		ListingID:   listingID,
		StorageKey:  key,
		ContentType: contentType,
	})
	if err != nil {
		_ = s.files.Remove(ctx, key)
		return nil, err
	}
	return photo, nil
}

// RemovePhoto deletes a photo row and its file.
func (s *ListingService) RemovePhoto(ctx context.Context, landlordID, listingID, photoID string) error {
	if _, err := s.ownedListing(ctx, landlordID, listingID); err != nil {
		return err
	}
	photo, err := s.store.RemoveListingPhoto(ctx, listingID, photoID)
	if err != nil {
		return err
	}
	return s.files.Remove(ctx, photo.StorageKey)
}

// PhotoPath resolves a stored photo to a servable file path.
func (s *ListingService) PhotoPath(key string) (string, error) {
	return s.files.Path(key)
}

// ownedListing loads a listing and verifies ownership. Non-owners get
// not-found, not forbidden, so listing ids are not probeable.
func (s *ListingService) ownedListing(ctx context.Context, landlordID, listingID string) (*domain.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.LandlordID != landlordID {
		return nil, port.ErrListingNotFound
	}
	return listing, nil
}
