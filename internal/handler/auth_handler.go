package handler

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	backend  port.AuthBackend
	profiles port.ProfileStore
	manager  *session.Manager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(backend port.AuthBackend, profiles port.ProfileStore, manager *session.Manager) *AuthHandler {
	return &AuthHandler{backend: backend, profiles: profiles, manager: manager}
}

// Register sets up the public auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	auth := router.Group("/auth")
	auth.Post("/signup", h.SignUp)
	auth.Post("/signin", h.SignIn)
	auth.Post("/refresh", h.Refresh)
}

// RegisterProtected sets up auth routes that need a resolved session.
func (h *AuthHandler) RegisterProtected(api fiber.Router) {
	auth := api.Group("/auth")
	auth.Post("/signout", h.SignOut)
	auth.Get("/me", h.Me)
	auth.Put("/me", h.UpdateMe)
}

// SignUp registers a renter or landlord account and opens its first session.
// Admin accounts are never created here; they come from the startup seed or
// an existing admin's role grant.
func (h *AuthHandler) SignUp(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Role     string `json:"role" validate:"required,oneof=renter landlord"`
		FullName string `json:"full_name" validate:"required"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	sess, tokens, err := h.backend.SignUp(c.Context(), body.Email, body.Password, domain.SignupMetadata{
		Role:     domain.Role(body.Role),
		FullName: body.FullName,
	})
	if err != nil {
		if errors.Is(err, port.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "email already registered"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign up failed"})
	}

	middleware.SetAuditAction(c, domain.AuditActionSignUp, "auth", sess.UserID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": sess,
		"tokens":  tokens,
	})
}

// SignIn verifies credentials and opens a session.
func (h *AuthHandler) SignIn(c fiber.Ctx) error {
	var body struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	sess, tokens, err := h.backend.SignIn(c.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, port.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid email or password"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign in failed"})
	}

	middleware.SetAuditAction(c, domain.AuditActionSignIn, "auth", sess.UserID)
	return c.JSON(fiber.Map{
		"session": sess,
		"tokens":  tokens,
	})
}

// Refresh rotates a refresh token into a fresh token pair.
func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	sess, tokens, err := h.backend.Refresh(c.Context(), body.RefreshToken)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired refresh token"})
	}

	return c.JSON(fiber.Map{
		"session": sess,
		"tokens":  tokens,
	})
}

// SignOut revokes the current session. The change listener drops the cached
// entry, so in-flight streams and later requests on this session stop cold.
func (h *AuthHandler) SignOut(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	sess := snap.Session()
	if sess == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	if err := h.backend.SignOut(c.Context(), sess.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sign out failed"})
	}

	middleware.SetAuditAction(c, domain.AuditActionSignOut, "auth", sess.UserID)
	return c.JSON(fiber.Map{"ok": true})
}

// Me returns the resolved view of the current session: profile, role set,
// and primary role. While resolution is in flight, loading is true and the
// role set is empty.
func (h *AuthHandler) Me(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	if snap == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	return c.JSON(fiber.Map{
		"session":      snap.Session(),
		"profile":      snap.Profile(),
		"roles":        snap.Roles(),
		"primary_role": snap.PrimaryRole(),
		"loading":      snap.Loading(),
	})
}

// UpdateMe edits the caller's profile and re-resolves the session so the
// next snapshot reflects the change.
func (h *AuthHandler) UpdateMe(c fiber.Ctx) error {
	snap := middleware.GetSnapshot(c)
	profile := snap.Profile()
	if profile == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "profile not ready"})
	}

	var body struct {
		FullName  string `json:"full_name" validate:"required"`
		Phone     string `json:"phone"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := validate.Struct(body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	profile.FullName = body.FullName
	profile.Phone = body.Phone
	profile.AvatarURL = body.AvatarURL

	updated, err := h.profiles.UpdateProfile(c.Context(), profile)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "profile update failed"})
	}

	h.manager.RefreshProfile(snap.Session().ID)
	return c.JSON(updated)
}
