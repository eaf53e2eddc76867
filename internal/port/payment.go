package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeRequest describes one charge attempt against the payment provider.
type ChargeRequest struct {
	PaymentID  string
	CustomerID string
	Amount     decimal.Decimal
	Currency   string
}

// ChargeResult is the provider's answer to a successful charge.
type ChargeResult struct {
	Reference string // provider-side receipt reference
}

// PaymentGateway abstracts the payment provider. The marketplace ships a
// simulated implementation; a declined charge is ErrChargeDeclined, transport
// trouble is any other error.
type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Refund(ctx context.Context, reference string) error
}
