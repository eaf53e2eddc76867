package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/store"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/service"
)

// maxPhotoSize caps one uploaded listing photo.
const maxPhotoSize = 10 << 20 // 10 MiB

// listingRequest is the body for creating or updating a listing.
type listingRequest struct {
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	PropertyType string `json:"property_type" validate:"required,oneof=apartment house duplex studio room"`
	Bedrooms     int    `json:"bedrooms" validate:"min=0"`
	Bathrooms    int    `json:"bathrooms" validate:"min=0"`
	Furnished    bool   `json:"furnished"`
	Address      string `json:"address" validate:"required"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state"`
	MonthlyRent  string `json:"monthly_rent" validate:"required"`
	Currency     string `json:"currency"`
}

// ListingHandler handles the public browse surface and the landlord's
// listing management.
type ListingHandler struct {
	listings  *service.ListingService
	analytics *store.AnalyticsStore
}

// NewListingHandler creates a new listing handler.
func NewListingHandler(listings *service.ListingService, analytics *store.AnalyticsStore) *ListingHandler {
	return &ListingHandler{listings: listings, analytics: analytics}
}

// Register sets up the public browse routes.
func (h *ListingHandler) Register(router fiber.Router) {
	listings := router.Group("/listings")
	listings.Get("/", h.Search)
	listings.Get("/:id", h.Get)
	listings.Get("/:id/photos/:photoID", h.Photo)
}

// RegisterLandlord sets up listing management on the landlord group.
func (h *ListingHandler) RegisterLandlord(landlord fiber.Router) {
	listings := landlord.Group("/listings")
	listings.Get("/", h.Mine)
	listings.Post("/", h.Create)
	listings.Get("/:id", h.GetOwn)
	listings.Put("/:id", h.Update)
	listings.Delete("/:id", h.Delete)
	listings.Post("/:id/submit", h.Submit)
	listings.Post("/:id/archive", h.Archive)
	listings.Post("/:id/photos", h.UploadPhoto)
	listings.Delete("/:id/photos/:photoID", h.DeletePhoto)

	landlord.Get("/dashboard", h.Dashboard)
}

// Search returns published listings matching the query filters.
func (h *ListingHandler) Search(c fiber.Ctx) error {
	filter := domain.ListingFilter{
		City:  strings.TrimSpace(c.Query("city")),
		Query: strings.TrimSpace(c.Query("q")),
	}
	if v := c.Query("min_rent"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			filter.MinRent = &d
		}
	}
	if v := c.Query("max_rent"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			filter.MaxRent = &d
		}
	}
	filter.MinBedrooms, _ = strconv.Atoi(c.Query("bedrooms", "0"))
	filter.Limit, _ = strconv.Atoi(c.Query("limit", "20"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset", "0"))

	listings, err := h.listings.Search(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// Get returns one published listing.
func (h *ListingHandler) Get(c fiber.Ctx) error {
	listing, err := h.listings.GetListing(c.Context(), "", c.Params("id"))
	if err != nil {
		return listingError(c, err)
	}
	return c.JSON(listing)
}

// Photo serves a stored listing photo file.
func (h *ListingHandler) Photo(c fiber.Ctx) error {
	listing, err := h.listings.GetListing(c.Context(), "", c.Params("id"))
	if err != nil {
		return listingError(c, err)
	}
	for _, photo := range listing.Photos {
		if photo.ID == c.Params("photoID") {
			path, err := h.listings.PhotoPath(photo.StorageKey)
			if err != nil {
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
			}
			if photo.ContentType != "" {
				c.Set("Content-Type", photo.ContentType)
			}
			return c.SendFile(path)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "photo not found"})
}

// Mine returns all of the landlord's listings, drafts included.
func (h *ListingHandler) Mine(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	listings, err := h.listings.MyListings(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"listings": listings, "count": len(listings)})
}

// GetOwn returns one of the landlord's listings regardless of status.
func (h *ListingHandler) GetOwn(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	listing, err := h.listings.GetListing(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return listingError(c, err)
	}
	return c.JSON(listing)
}

// Create drafts a new listing.
func (h *ListingHandler) Create(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	in, ok := h.bindListing(c)
	if !ok {
		return nil
	}

	listing, err := h.listings.CreateListing(c.Context(), snap.UserID(), in)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	middleware.SetAuditAction(c, domain.AuditActionListingCreate, "listing", listing.ID)
	return c.Status(fiber.StatusCreated).JSON(listing)
}

// Update edits one of the landlord's listings.
func (h *ListingHandler) Update(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	in, ok := h.bindListing(c)
	if !ok {
		return nil
	}

	listing, err := h.listings.UpdateListing(c.Context(), snap.UserID(), c.Params("id"), in)
	if err != nil {
		return listingError(c, err)
	}
	return c.JSON(listing)
}

// Delete removes one of the landlord's listings.
func (h *ListingHandler) Delete(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	if err := h.listings.DeleteListing(c.Context(), snap.UserID(), c.Params("id")); err != nil {
		return listingError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Submit queues a draft for admin review.
func (h *ListingHandler) Submit(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	listing, err := h.listings.SubmitForReview(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return listingError(c, err)
	}
	return c.JSON(listing)
}

// Archive takes a listing off the market.
func (h *ListingHandler) Archive(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	listing, err := h.listings.ArchiveListing(c.Context(), snap.UserID(), c.Params("id"))
	if err != nil {
		return listingError(c, err)
	}
	return c.JSON(listing)
}

// UploadPhoto attaches a photo file to the listing.
func (h *ListingHandler) UploadPhoto(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)

	fileHeader, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing photo file"})
	}
	if fileHeader.Size > maxPhotoSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "photo too large"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable photo file"})
	}
	defer file.Close()

	photo, err := h.listings.AddPhoto(
		c.Context(), snap.UserID(), c.Params("id"),
		fileHeader.Filename, fileHeader.Header.Get("Content-Type"), file,
	)
	if err != nil {
		return listingError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(photo)
}

// DeletePhoto removes a photo from the listing.
func (h *ListingHandler) DeletePhoto(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	if err := h.listings.RemovePhoto(c.Context(), snap.UserID(), c.Params("id"), c.Params("photoID")); err != nil {
		return listingError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// Dashboard returns the landlord's aggregate counters.
func (h *ListingHandler) Dashboard(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	stats, err := h.analytics.LandlordStats(c.Context(), snap.UserID())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(stats)
}

// bindListing parses and validates a listing body. On failure it writes the
// error response and returns ok=false.
func (h *ListingHandler) bindListing(c fiber.Ctx) (service.ListingInput, bool) {
	var body listingRequest
	if err := c.Bind().JSON(&body); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		return service.ListingInput{}, false
	}
	if err := validate.Struct(body); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
		return service.ListingInput{}, false
	}

	rent, err := decimal.NewFromString(body.MonthlyRent)
	if err != nil || !rent.IsPositive() {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "monthly_rent must be a positive amount"})
		return service.ListingInput{}, false
	}

	return service.ListingInput{
		Title:        body.Title,
		Description:  body.Description,
		PropertyType: body.PropertyType,
		Bedrooms:     body.Bedrooms,
		Bathrooms:    body.Bathrooms,
		Furnished:    body.Furnished,
		Address:      body.Address,
		City:         body.City,
		State:        body.State,
		MonthlyRent:  rent,
		Currency:     body.Currency,
	}, true
}

// listingError maps service errors to HTTP responses.
func listingError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, port.ErrListingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "listing not found"})
	case errors.Is(err, port.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
