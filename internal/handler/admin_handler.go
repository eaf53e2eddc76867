package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
)

// AdminHandler handles moderation, user management, and platform analytics.
type AdminHandler struct {
	store     *store.PostgresStore
	analytics *store.AnalyticsStore
	listings  *service.ListingService
	payments  *service.PaymentService
	manager   *session.Manager
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	s *store.PostgresStore,
	analytics *store.AnalyticsStore,
	listings *service.ListingService,
	payments *service.PaymentService,
	manager *session.Manager,
) *AdminHandler {
	return &AdminHandler{
		store:     s,
		analytics: analytics,
		listings:  listings,
		payments:  payments,
		manager:   manager,
	}
}

// Register sets up the admin routes.
func (h *AdminHandler) Register(admin fiber.Router) {
	admin.Get("/stats", h.Stats)
	admin.Get("/review-queue", h.ReviewQueue)
	admin.Post("/listings/:id/review", h.ReviewListing)
	admin.Get("/users", h.Users)
	admin.Post("/users/:id/roles", h.GrantRole)
	admin.Delete("/users/:id/roles/:role", h.RevokeRole)
	admin.Post("/payments/:id/refund", h.RefundPayment)
}

// Stats returns platform-wide counts and payment volume.
func (h *AdminHandler) Stats(c fiber.Ctx) error {
	stats, err := h.analytics.PlatformStats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// ReviewQueue returns listings awaiting moderation, oldest first.
func (h *AdminHandler) ReviewQueue(c fiber.Ctx) error {
	listings, err := h.listings.ReviewQueue(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// ReviewListing approves or rejects a submitted listing.
func (h *AdminHandler) ReviewListing(c fiber.Ctx) error {
	var body struct {
		Approve bool   `json:"approve"`
		Note    string `json:"note" validate:"max=2000"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	listing, err := h.listings.ReviewListing(c.Context(), c.Params("id"), body.Approve, body.Note)
	if err != nil {
		return listingError(c, err)
	}

	middleware.SetAuditAction(c, domain.AuditActionListingReview, "listing", listing.ID)
	return c.JSON(listing)
}

// Users returns profiles together with their granted roles.
func (h *AdminHandler) Users(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	profiles, err := h.store.ListProfiles(c.Context(), limit, offset)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	users := make([]fiber.Map, 0, len(profiles))
	for i := range profiles {
		roles, err := h.store.ListUserRoles(c.Context(), profiles[i].ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		users = append(users, fiber.Map{
			"profile":      profiles[i],
			"roles":        roles,
			"primary_role": domain.PrimaryRole(roles),
		})
	}

	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

// GrantRole adds a role to a user. Live sessions of that user re-resolve so
// the grant shows up without a fresh sign-in.
func (h *AdminHandler) GrantRole(c fiber.Ctx) error {
	userID := c.Params("id")

	var body struct {
		Role string `json:"role" validate:"required,oneof=renter landlord admin"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	role, _ := domain.ParseRole(body.Role)
	if err := h.store.UpsertUserRole(c.Context(), userID, role); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.manager.RefreshUser(userID)

	roles, err := h.store.ListUserRoles(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	middleware.SetAuditAction(c, domain.AuditActionRoleGrant, "user", userID)
	return c.JSON(fiber.Map{"user_id": userID, "roles": roles})
}

// RevokeRole removes a role from a user and forces their live sessions to
// re-resolve, so the revoked permission stops applying immediately.
func (h *AdminHandler) RevokeRole(c fiber.Ctx) error {
	userID := c.Params("id")

	role, ok := domain.ParseRole(c.Params("role"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown role"})
	}

	if err := h.store.RemoveUserRole(c.Context(), userID, role); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	h.manager.RefreshUser(userID)

	roles, err := h.store.ListUserRoles(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	middleware.SetAuditAction(c, domain.AuditActionRoleRevoke, "user", userID)
	return c.JSON(fiber.Map{"user_id": userID, "roles": roles})
}

// RefundPayment refunds a settled payment through the gateway.
func (h *AdminHandler) RefundPayment(c fiber.Ctx) error {
	payment, err := h.payments.Refund(c.Context(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, port.ErrPaymentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "payment not found"})
		case errors.Is(err, port.ErrForbidden):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}

	middleware.SetAuditAction(c, domain.AuditActionPaymentRefund, "payment", payment.ID)
	return c.JSON(payment)
}
