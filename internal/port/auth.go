package port

import (
	"context"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
)

// AuthBackend abstracts the hosted auth provider: credential handling, session
// issuance and revocation, and the auth state change feed. The session module
// consumes this interface only; it never talks to the concrete adapter.
type AuthBackend interface {
	// SignUp registers a new identity and opens a session for it. The metadata
	// travels with the session so the profile resolver can seed a profile.
	SignUp(ctx context.Context, email, password string, meta domain.SignupMetadata) (*domain.Session, *domain.TokenPair, error)

	// SignIn verifies credentials and opens a session.
	SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.TokenPair, error)

	// SignOut revokes the session. Emits a signed_out event even when the
	// session row was already gone.
	SignOut(ctx context.Context, sessionID string) error

	// Refresh rotates an access token using a refresh token.
	Refresh(ctx context.Context, refreshToken string) (*domain.Session, *domain.TokenPair, error)

	// SessionFromToken validates an access token against the backend and
	// returns the live session it belongs to. Revoked or expired sessions
	// return an error.
	SessionFromToken(ctx context.Context, accessToken string) (*domain.Session, error)

	// ParseToken decodes an access token statelessly: signature and expiry
	// only, no revocation check. Callers that need certainty use
	// SessionFromToken.
	ParseToken(accessToken string) (*domain.Session, error)

	// Subscribe returns a channel receiving every auth state transition.
	Subscribe() chan domain.AuthEvent

	// Unsubscribe removes and closes a channel returned by Subscribe.
	Unsubscribe(ch chan domain.AuthEvent)
}
