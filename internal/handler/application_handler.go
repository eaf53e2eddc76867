package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
)

// ApplicationHandler handles rental applications on both sides: the renter
// submitting and the landlord deciding.
type ApplicationHandler struct {
	applications *service.ApplicationService
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(applications *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{applications: applications}
}

// RegisterRenter sets up the renter-side application routes.
func (h *ApplicationHandler) RegisterRenter(renter fiber.Router) {
	apps := renter.Group("/applications")
	apps.Get("/", h.Mine)
	apps.Post("/", h.Apply)
	apps.Post("/:id/withdraw", h.Withdraw)
}

// RegisterLandlord sets up the landlord-side application routes.
func (h *ApplicationHandler) RegisterLandlord(landlord fiber.Router) {
	landlord.Get("/applications", h.Pending)
	landlord.Get("/listings/:id/applications", h.ForListing)
	landlord.Post("/applications/:id/decision", h.Decide)
}

// Apply submits an application to a published listing.
func (h *ApplicationHandler) Apply(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	var body struct {
		ListingID  string `json:"listing_id" validate:"required,uuid4"`
		Message    string `json:"message"`
		MoveInDate string `json:"move_in_date" validate:"required"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	moveIn, err := time.Parse("2006-01-02", body.MoveInDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "move_in_date must be YYYY-MM-DD"})
	}

	app, err := h.applications.Apply(c.Context(), snap.UserID(), body.ListingID, body.Message, moveIn)
	if err != nil {
		return applicationError(c, err)
	}

	middleware.SetAuditAction(c, domain.AuditActionApplicationSubmit, "application", app.ID)
	return c.Status(fiber.StatusCreated).JSON(app)
}

// Mine returns the renter's applications.
func (h *ApplicationHandler) Mine(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	apps, err := h.applications.MyApplications(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"applications": apps, "count": len(apps)})
}

// Withdraw pulls back the renter's own pending application.
func (h *ApplicationHandler) Withdraw(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	app, err := h.applications.Withdraw(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return applicationError(c, err)
	}
	return c.JSON(app)
}

// Pending returns open applications across the landlord's listings.
func (h *ApplicationHandler) Pending(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	apps, err := h.applications.PendingForLandlord(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"applications": apps, "count": len(apps)})
}

// ForListing returns one listing's applications to its owner.
func (h *ApplicationHandler) ForListing(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	apps, err := h.applications.ForListing(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return applicationError(c, err)
	}
	return c.JSON(fiber.Map{"applications": apps, "count": len(apps)})
}

// Decide approves or declines a pending application.
func (h *ApplicationHandler) Decide(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	var body struct {
		Approve bool   `json:"approve"`
		Note    string `json:"note"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	app, err := h.applications.Decide(c.Context(), snap.UserID(), c.Params("id"), body.Approve, body.Note)
	if err != nil {
		return applicationError(c, err)
	}

	middleware.SetAuditAction(c, domain.AuditActionApplicationDecide, "application", app.ID)
	return c.JSON(app)
}

// applicationError maps service errors to HTTP responses.
func applicationError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrDuplicateApplication):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "you already have a live application for this listing"})
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
