package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
)

// PaymentHandler handles rent payment endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// RegisterRenter sets up the renter-side payment routes.
func (h *PaymentHandler) RegisterRenter(r fiber.Router) {
	pay := r.Group("/payments")
	pay.Get("/", h.List)
	pay.Post("/", h.Initiate)
	pay.Get("/:id", h.Get)
}

// RegisterLandlord sets up the landlord-side payment routes.
func (h *PaymentHandler) RegisterLandlord(r fiber.Router) {
	r.Get("/payments", h.Received)
}

// Initiate starts a rent payment for an approved application. The charge
// settles asynchronously, so the response carries a pending payment and the
// outcome arrives on the event stream.
func (h *PaymentHandler) Initiate(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	var body struct {
		ApplicationID string `json:"application_id" validate:"required,uuid4"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	payment, err := h.payments.InitiatePayment(c.Context(), snap.UserID(), body.ApplicationID)
	if err != nil {
		return paymentError(c, err)
	}

	middleware.SetAuditAction(c, domain.AuditActionPaymentInitiate, "payment", payment.ID)
	return c.Status(fiber.StatusAccepted).JSON(payment)
}

// Get returns one payment the caller took part in.
func (h *PaymentHandler) Get(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	payment, err := h.payments.GetPayment(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return paymentError(c, err)
	}
	return c.JSON(payment)
}

// List returns the caller's payments as renter.
func (h *PaymentHandler) List(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	payments, err := h.payments.MyPayments(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}

// Received returns payments collected on the landlord's listings.
func (h *PaymentHandler) Received(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	payments, err := h.payments.LandlordPayments(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}

// paymentError maps service errors to HTTP responses.
func paymentError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrPaymentNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
	case errors.Is(err, port.ErrApplicationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "application not found"})
	case errors.Is(err, port.ErrListingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "listing not found"})
	case errors.Is(err, port.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
