package domain

import "time"

// SignupMetadata is the free-form metadata attached to a sign-up request.
// The profile resolver uses it to seed a profile when none exists yet.
type SignupMetadata struct {
	Role     Role   `json:"role"`
	FullName string `json:"full_name"`
}

// AuthUser is the identity record owned by the auth backend. It is immutable
// from the application's perspective; only the backend writes it.
type AuthUser struct {
	ID           string         `json:"id"          db:"id"`
	Email        string         `json:"email"       db:"email"`
	PasswordHash string         `json:"-"           db:"password_hash"` // never serialized to JSON
	Metadata     SignupMetadata `json:"metadata"    db:"metadata"`
	CreatedAt    time.Time      `json:"created_at"  db:"created_at"`
}

// Profile is the application-owned record for a user, keyed by the auth user id.
// Role is the legacy single-role column: it feeds the role resolver's fallback
// chain but is never consulted directly for authorization decisions.
type Profile struct {
	ID           string     `json:"id"            db:"id"`
	Email        string     `json:"email"         db:"email"`
	FullName     string     `json:"full_name"     db:"full_name"`
	Phone        string     `json:"phone"         db:"phone"`
	AvatarURL    string     `json:"avatar_url"    db:"avatar_url"`
	Role         string     `json:"role"          db:"role"` // legacy, may be empty
	CreatedAt    time.Time  `json:"created_at"    db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"    db:"updated_at"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty" db:"last_sign_in_at"`
}
