package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
)

// ApplicationService manages rental applications from submission to decision.
type ApplicationService struct {
	store *store.PostgresStore
	bus   *realtime.Bus
}

// NewApplicationService creates a new application service.
func NewApplicationService(s *store.PostgresStore, bus *realtime.Bus) *ApplicationService {
	return &ApplicationService{store: s, bus: bus}
}

// Apply submits a renter's application to a published listing. A renter holds
// at most one live application per listing; re-applying after a decline or
// withdrawal is allowed.
func (s *ApplicationService) Apply(ctx context.Context, renterID, listingID, message string, moveIn time.Time) (*domain.Application, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != domain.ListingStatusPublished {
		return nil, port.ErrListingNotFound
	}
	if listing.LandlordID == renterID {
		return nil, fmt.Errorf("own listing: %w", port.ErrForbidden)
	}

	app, err := s.store.CreateApplication(ctx, &domain.Application{
		ListingID:  listingID,
		RenterID:   renterID,
		Message:    message,
		MoveInDate: moveIn,
		Status:     domain.ApplicationStatusPending,
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(listing.LandlordID, realtime.EventApplicationUpdate, app)
	return app, nil
}

// Decide records the landlord's approval or decline of a pending application.
func (s *ApplicationService) Decide(ctx context.Context, landlordID, applicationID string, approve bool, note string) (*domain.Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.LandlordID != landlordID {
		return nil, port.ErrApplicationNotFound
	}

	status := domain.ApplicationStatusApproved
	if !approve {
		status = domain.ApplicationStatusDeclined
	}
	updated, err := s.store.SetApplicationStatus(ctx, applicationID, status, note)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(app.RenterID, realtime.EventApplicationUpdate, updated)
	return updated, nil
}

// Withdraw lets a renter pull back their own pending application.
func (s *ApplicationService) Withdraw(ctx context.Context, renterID, applicationID string) (*domain.Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.RenterID != renterID {
		return nil, port.ErrApplicationNotFound
	}
	return s.store.SetApplicationStatus(ctx, applicationID, domain.ApplicationStatusWithdrawn, "")
}

// MyApplications returns the renter's applications.
func (s *ApplicationService) MyApplications(ctx context.Context, renterID string) ([]domain.Application, error) {
	return s.store.ApplicationsByRenter(ctx, renterID)
}

// ForListing returns a listing's applications to its owner.
func (s *ApplicationService) ForListing(ctx context.Context, landlordID, listingID string) ([]domain.Application, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.LandlordID != landlordID {
		return nil, port.ErrListingNotFound
	}
	return s.store.ApplicationsByListing(ctx, listingID)
}

// PendingForLandlord returns open applications across the landlord's listings.
func (s *ApplicationService) PendingForLandlord(ctx context.Context, landlordID string) ([]domain.Application, error) {
	return s.store.ApplicationsByLandlord(ctx, landlordID)
}
