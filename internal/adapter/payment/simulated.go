package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

// SimulatedGateway implements port.PaymentGateway without a real processor.
// Charges settle after an artificial delay; amounts above the decline
// threshold are rejected so failure paths stay reachable in demos and tests.
type SimulatedGateway struct {
	declineAbove decimal.Decimal
	settleDelay  time.Duration
}

// NewSimulatedGateway creates a gateway that declines charges above
// declineAbove. A zero threshold approves everything.
func NewSimulatedGateway(declineAbove decimal.Decimal, settleDelay time.Duration) *SimulatedGateway {
	return &SimulatedGateway{declineAbove: declineAbove, settleDelay: settleDelay}
}

// Charge settles a payment and returns a gateway reference.
func (g *SimulatedGateway) Charge(ctx context.Context, req port.ChargeRequest) (*port.ChargeResult, error) {
	if g.settleDelay > 0 {
		select {
		case <-time.After(g.settleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("charge %s: %w", req.PaymentID, port.ErrChargeDeclined)
	}
	if g.declineAbove.IsPositive() && req.Amount.GreaterThan(g.declineAbove) {
		return nil, fmt.Errorf("charge %s exceeds limit: %w", req.PaymentID, port.ErrChargeDeclined)
	}

	return &port.ChargeResult{Reference: "sim_" + uuid.NewString()}, nil
}

// Refund reverses a settled charge.
func (g *SimulatedGateway) Refund(ctx context.Context, reference string) error {
	if g.settleDelay > 0 {
		select {
		case <-time.After(g.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if reference == "" {
		return fmt.Errorf("refund: missing gateway reference")
	}
	return nil
}
