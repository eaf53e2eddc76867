package port

import (
	"context"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
)

// ProfileStore is the profiles-table surface of the backend platform.
type ProfileStore interface {
	// GetProfile returns the profile for a user id, or (nil, nil) when no row
	// exists; absence is expected, not exceptional.
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// CreateProfile inserts a profile row and, when initialRole is valid, a
	// matching role-assignment row. A uniqueness conflict (the row appeared
	// concurrently) returns ErrProfileExists so callers can re-fetch.
	CreateProfile(ctx context.Context, p *domain.Profile, initialRole domain.Role) (*domain.Profile, error)

	// UpdateProfile persists user-editable profile fields.
	UpdateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error)

	// TouchLastSignIn stamps the profile's last_sign_in_at column.
	TouchLastSignIn(ctx context.Context, userID string) error
}

// RoleStore is the role-assignment surface of the backend platform.
type RoleStore interface {
	// CurrentUserRoles returns the authoritative role list for the session's
	// own identity. The user id is taken from the session, never from the
	// caller, so a confused deputy cannot read another user's roles.
	CurrentUserRoles(ctx context.Context, session *domain.Session) ([]domain.Role, error)

	// UpsertUserRole inserts a role assignment keyed on (user id, role).
	// Repeated calls with the same pair leave exactly one row.
	UpsertUserRole(ctx context.Context, userID string, role domain.Role) error

	// ListUserRoles returns role assignments for an arbitrary user. Admin
	// surfaces only; the session resolver never calls this.
	ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error)

	// RemoveUserRole deletes one role assignment.
	RemoveUserRole(ctx context.Context, userID string, role domain.Role) error
}
