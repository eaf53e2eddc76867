package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailTaken           = errors.New("email already registered")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrProfileExists        = errors.New("profile already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrListingNotFound      = errors.New("listing not found")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrDuplicateApplication = errors.New("application already submitted for this listing")
	ErrChargeDeclined       = errors.New("charge declined")
	ErrForbidden            = errors.New("forbidden")
)
