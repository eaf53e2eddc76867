package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

// dummyHash is a valid bcrypt hash compared against when the email is
// unknown, so sign-in timing does not reveal whether an account exists.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Store is the slice of the relational store the auth backend needs.
type Store interface {
	CreateAuthUser(ctx context.Context, email, passwordHash string, meta domain.SignupMetadata) (*domain.AuthUser, error)
	GetAuthUserByEmail(ctx context.Context, email string) (*domain.AuthUser, error)
	CreateAuthSession(ctx context.Context, sess *domain.Session, refreshHash string) error
	GetAuthSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetAuthSessionByRefreshHash(ctx context.Context, refreshHash string) (*domain.Session, error)
	RotateAuthSession(ctx context.Context, sessionID, newRefreshHash string, expiresAt time.Time) error
	RevokeAuthSession(ctx context.Context, sessionID string) error
}

// Config holds token signing parameters for the local backend.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// LocalBackend implements port.AuthBackend against the local user table:
// bcrypt credentials, HS256 access tokens, opaque rotating refresh tokens.
type LocalBackend struct {
	store Store
	cfg   Config

	mu   sync.RWMutex
	subs []chan domain.AuthEvent
}

// NewLocalBackend creates an auth backend over the given store.
func NewLocalBackend(store Store, cfg Config) *LocalBackend {
	return &LocalBackend{store: store, cfg: cfg}
}

// sessionClaims is the access token payload. The session id travels in "sid"
// so a token can be tied back to its revocable session row.
type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string                `json:"sid"`
	Email     string                `json:"email"`
	Metadata  domain.SignupMetadata `json:"meta"`
}

// SignUp registers a new identity and opens its first session.
func (b *LocalBackend) SignUp(ctx context.Context, email, password string, meta domain.SignupMetadata) (*domain.Session, *domain.TokenPair, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := b.store.CreateAuthUser(ctx, email, string(hash), meta)
	if err != nil {
		return nil, nil, err
	}

	sess, pair, err := b.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	b.publish(domain.AuthEventSignedIn, sess)
	slog.Info("user signed up", "user_id", user.ID)
	return sess, pair, nil
}

// SignIn verifies credentials and opens a session.
func (b *LocalBackend) SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.TokenPair, error) {
	user, err := b.store.GetAuthUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, port.ErrUserNotFound) {
			// equalize timing with the known-user path
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, nil, port.ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, port.ErrInvalidCredentials
	}

	sess, pair, err := b.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	b.publish(domain.AuthEventSignedIn, sess)
	slog.Info("user signed in", "user_id", user.ID)
	return sess, pair, nil
}

// SignOut revokes the session and broadcasts the sign-out. The event fires
// even when the session row was already revoked or gone, so every consumer
// drops its cached state.
func (b *LocalBackend) SignOut(ctx context.Context, sessionID string) error {
	sess, err := b.store.GetAuthSession(ctx, sessionID)
	if err != nil {
		sess = &domain.Session{ID: sessionID}
	}

	if err := b.store.RevokeAuthSession(ctx, sessionID); err != nil {
		return err
	}

	b.publish(domain.AuthEventSignedOut, sess)
	slog.Info("user signed out", "session_id", sessionID)
	return nil
}

// Refresh rotates the refresh token and mints a fresh access token.
func (b *LocalBackend) Refresh(ctx context.Context, refreshToken string) (*domain.Session, *domain.TokenPair, error) {
	sess, err := b.store.GetAuthSessionByRefreshHash(ctx, hashRefreshToken(refreshToken))
	if err != nil {
		return nil, nil, err
	}
	if sess.Expired() {
		return nil, nil, port.ErrSessionExpired
	}

	plaintext, refreshHash := newRefreshToken()
	sess.ExpiresAt = time.Now().Add(b.cfg.RefreshTTL)
	if err := b.store.RotateAuthSession(ctx, sess.ID, refreshHash, sess.ExpiresAt); err != nil {
		return nil, nil, err
	}

	access, accessExpiry, err := b.signAccessToken(sess)
	if err != nil {
		return nil, nil, err
	}

	pair := &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: plaintext,
		TokenType:    "bearer",
		ExpiresAt:    accessExpiry,
	}

	b.publish(domain.AuthEventTokenRefreshed, sess)
	return sess, pair, nil
}

// SessionFromToken validates an access token and resolves it to a live
// session row. Revoked sessions fail here even if the token itself is valid.
func (b *LocalBackend) SessionFromToken(ctx context.Context, accessToken string) (*domain.Session, error) {
	claims, err := b.parseClaims(accessToken)
	if err != nil {
		return nil, err
	}

	sess, err := b.store.GetAuthSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired() {
		return nil, port.ErrSessionExpired
	}
	return sess, nil
}

// ParseToken decodes an access token without touching the store. The result
// reflects token contents only; revocation is not checked.
func (b *LocalBackend) ParseToken(accessToken string) (*domain.Session, error) {
	claims, err := b.parseClaims(accessToken)
	if err != nil {
		return nil, err
	}

	sess := &domain.Session{
		ID:       claims.SessionID,
		UserID:   claims.Subject,
		Email:    claims.Email,
		Metadata: claims.Metadata,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		sess.CreatedAt = claims.IssuedAt.Time
	}
	return sess, nil
}

// Subscribe returns a channel receiving every auth state transition.
func (b *LocalBackend) Subscribe() chan domain.AuthEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.AuthEvent, 16)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes a channel from subscribers and closes it.
func (b *LocalBackend) Unsubscribe(ch chan domain.AuthEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *LocalBackend) publish(eventType domain.AuthEventType, sess *domain.Session) {
	b.mu.RLock()
	subs := make([]chan domain.AuthEvent, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	event := domain.AuthEvent{Type: eventType, Session: sess, At: time.Now()}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			slog.Warn("auth event dropped, slow subscriber", "type", eventType)
		}
	}
}

func (b *LocalBackend) openSession(ctx context.Context, user *domain.AuthUser) (*domain.Session, *domain.TokenPair, error) {
	now := time.Now()
	sess := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		Metadata:  user.Metadata,
		ExpiresAt: now.Add(b.cfg.RefreshTTL),
		CreatedAt: now,
	}

	plaintext, refreshHash := newRefreshToken()
	if err := b.store.CreateAuthSession(ctx, sess, refreshHash); err != nil {
		return nil, nil, err
	}

	access, accessExpiry, err := b.signAccessToken(sess)
	if err != nil {
		return nil, nil, err
	}

	pair := &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: plaintext,
		TokenType:    "bearer",
		ExpiresAt:    accessExpiry,
	}
	return sess, pair, nil
}

func (b *LocalBackend) signAccessToken(sess *domain.Session) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(b.cfg.AccessTTL)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.cfg.Issuer,
			Subject:   sess.UserID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		SessionID: sess.ID,
		Email:     sess.Email,
		Metadata:  sess.Metadata,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(b.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiry, nil
}

func (b *LocalBackend) parseClaims(accessToken string) (*sessionClaims, error) {
	token, err := jwt.ParseWithClaims(accessToken, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(b.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, port.ErrSessionExpired
		}
		return nil, port.ErrTokenInvalid
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, port.ErrTokenInvalid
	}
	if claims.Issuer != b.cfg.Issuer {
		return nil, port.ErrTokenInvalid
	}
	return claims, nil
}

func newRefreshToken() (plaintext, hash string) {
	plaintext = uuid.NewString() + uuid.NewString()
	return plaintext, hashRefreshToken(plaintext)
}

func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
