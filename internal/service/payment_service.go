package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/realtime"
)

// chargeTimeout bounds one gateway charge attempt.
const chargeTimeout = 30 * time.Second

// PaymentService moves rent payments through
// pending -> processing -> succeeded/failed against the payment gateway.
type PaymentService struct {
	store   *store.PostgresStore
	gateway port.PaymentGateway
	bus     *realtime.Bus
}

// NewPaymentService creates a new payment service.
func NewPaymentService(s *store.PostgresStore, gateway port.PaymentGateway, bus *realtime.Bus) *PaymentService {
	return &PaymentService{store: s, gateway: gateway, bus: bus}
}

// InitiatePayment starts a rent payment for the renter's approved
// application. The charge itself settles asynchronously; the returned payment
// is in pending status and transitions are delivered over the event stream.
func (s *PaymentService) InitiatePayment(ctx context.Context, renterID, applicationID string) (*domain.Payment, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.RenterID != renterID {
		return nil, port.ErrApplicationNotFound
	}
	if app.Status != domain.ApplicationStatusApproved {
		return nil, fmt.Errorf("application %s not approved: %w", applicationID, port.ErrForbidden)
	}

	listing, err := s.store.GetListing(ctx, app.ListingID)
	if err != nil {
		return nil, err
	}

	payment, err := s.store.CreatePayment(ctx, &domain.Payment{
		ApplicationID: app.ID,
		ListingID:     listing.ID,
		RenterID:      renterID,
		LandlordID:    listing.LandlordID,
		Amount:        listing.MonthlyRent,
		Currency:      listing.Currency,
		Status:        domain.PaymentStatusPending,
	})
	if err != nil {
		return nil, err
	}

	go s.settle(payment)
	return payment, nil
}

// settle runs the charge against the gateway and records the outcome.
func (s *PaymentService) settle(payment *domain.Payment) {
	ctx, cancel := context.WithTimeout(context.Background(), chargeTimeout)
	defer cancel()

	current, err := s.transition(ctx, payment.ID, domain.PaymentStatusProcessing, "", "")
	if err != nil {
		slog.Error("payment transition failed", "payment_id", payment.ID, "error", err)
		return
	}

	result, err := s.gateway.Charge(ctx, port.ChargeRequest{
		PaymentID:  current.ID,
		CustomerID: current.RenterID,
		Amount:     current.Amount,
		Currency:   current.Currency,
	})
	if err != nil {
		reason := "gateway error"
		if errors.Is(err, port.ErrChargeDeclined) {
			reason = "charge declined"
		}
		slog.Warn("payment failed", "payment_id", payment.ID, "error", err)
		if _, ferr := s.transition(ctx, payment.ID, domain.PaymentStatusFailed, "", reason); ferr != nil {
			slog.Error("payment transition failed", "payment_id", payment.ID, "error", ferr)
		}
		return
	}

	if _, err := s.transition(ctx, payment.ID, domain.PaymentStatusSucceeded, result.Reference, ""); err != nil {
		slog.Error("payment transition failed", "payment_id", payment.ID, "error", err)
		return
	}
	slog.Info("payment settled", "payment_id", payment.ID, "reference", result.Reference)
}

// Refund reverses a settled payment (admin operation).
func (s *PaymentService) Refund(ctx context.Context, paymentID string) (*domain.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("payment %s not refundable from %s: %w", paymentID, payment.Status, port.ErrForbidden)
	}
	if err := s.gateway.Refund(ctx, payment.Receipt); err != nil {
		return nil, fmt.Errorf("refund payment %s: %w", paymentID, err)
	}
	return s.transition(ctx, paymentID, domain.PaymentStatusRefunded, payment.Receipt, "")
}

// GetPayment returns a payment to one of its participants.
func (s *PaymentService) GetPayment(ctx context.Context, viewerID, paymentID string) (*domain.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.RenterID != viewerID && payment.LandlordID != viewerID {
		return nil, port.ErrPaymentNotFound
	}
	return payment, nil
}

// MyPayments returns the renter's payment history.
func (s *PaymentService) MyPayments(ctx context.Context, renterID string) ([]domain.Payment, error) {
	return s.store.PaymentsByRenter(ctx, renterID)
}

// LandlordPayments returns payments flowing to the landlord's listings.
func (s *PaymentService) LandlordPayments(ctx context.Context, landlordID string) ([]domain.Payment, error) {
	return s.store.PaymentsByLandlord(ctx, landlordID)
}

// transition persists a status change and notifies both participants.
func (s *PaymentService) transition(ctx context.Context, paymentID, status, receipt, failureReason string) (*domain.Payment, error) {
	updated, err := s.store.SetPaymentStatus(ctx, paymentID, status, receipt, failureReason)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(updated.RenterID, realtime.EventPaymentUpdate, updated)
	s.bus.Publish(updated.LandlordID, realtime.EventPaymentUpdate, updated)
	return updated, nil
}
