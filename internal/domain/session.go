package domain

import "time"

// Session is the backend-owned authentication session. The application holds a
// read-only reference; it is created at sign-in and revoked at sign-out.
type Session struct {
	ID        string         `json:"id"         db:"id"`
	UserID    string         `json:"user_id"    db:"user_id"`
	Email     string         `json:"email"      db:"email"`
	Metadata  SignupMetadata `json:"metadata"   db:"metadata"`
	ExpiresAt time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// Expired reports whether the session's access window has passed.
func (s *Session) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// AuthEventType identifies an auth state transition emitted by the backend.
type AuthEventType string

const (
	AuthEventSignedIn       AuthEventType = "signed_in"
	AuthEventSignedOut      AuthEventType = "signed_out"
	AuthEventTokenRefreshed AuthEventType = "token_refreshed"
)

// AuthEvent is published by the auth backend on every state transition.
// Session is always set; on signed_out it refers to the session being closed.
type AuthEvent struct {
	Type    AuthEventType `json:"type"`
	Session *Session      `json:"session"`
	At      time.Time     `json:"at"`
}

// TokenPair is returned to clients after a successful sign-in or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}
