package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/adapter/auth"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/handler"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/middleware"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
)

// memPlatform is an in-memory stand-in for the Postgres store covering the
// auth, profile, and role surfaces the auth flow touches.
type memPlatform struct {
	mu       sync.Mutex
	users    map[string]*domain.AuthUser // keyed by lowercase email
	sessions map[string]*sessionRow
	profiles map[string]*domain.Profile
	roles    map[string][]domain.Role
	nextID   int
}

type sessionRow struct {
	sess        domain.Session
	refreshHash string
	revoked     bool
}

func newMemPlatform() *memPlatform {
	return &memPlatform{
		users:    make(map[string]*domain.AuthUser),
		sessions: make(map[string]*sessionRow),
		profiles: make(map[string]*domain.Profile),
		roles:    make(map[string][]domain.Role),
	}
}

func (m *memPlatform) CreateAuthUser(_ context.Context, email, passwordHash string, meta domain.SignupMetadata) (*domain.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := m.users[key]; exists {
		return nil, port.ErrEmailTaken
	}
	m.nextID++
	user := &domain.AuthUser{
		ID:           fmt.Sprintf("user-%d", m.nextID),
		Email:        email,
		PasswordHash: passwordHash,
		Metadata:     meta,
		CreatedAt:    time.Now(),
	}
	m.users[key] = user
	cp := *user
	return &cp, nil
}

func (m *memPlatform) GetAuthUserByEmail(_ context.Context, email string) (*domain.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, port.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *memPlatform) CreateAuthSession(_ context.Context, sess *domain.Session, refreshHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = &sessionRow{sess: *sess, refreshHash: refreshHash}
	return nil
}

func (m *memPlatform) GetAuthSession(_ context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.sessions[sessionID]
	if !ok {
		return nil, port.ErrTokenInvalid
	}
	if row.revoked {
		return nil, port.ErrSessionRevoked
	}
	cp := row.sess
	return &cp, nil
}

func (m *memPlatform) GetAuthSessionByRefreshHash(_ context.Context, refreshHash string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.sessions {
		if row.refreshHash == refreshHash {
			if row.revoked {
				return nil, port.ErrSessionRevoked
			}
			cp := row.sess
			return &cp, nil
		}
	}
	return nil, port.ErrTokenInvalid
}

func (m *memPlatform) RotateAuthSession(_ context.Context, sessionID, newRefreshHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.sessions[sessionID]
	if !ok || row.revoked {
		return port.ErrSessionRevoked
	}
	row.refreshHash = newRefreshHash
	row.sess.ExpiresAt = expiresAt
	return nil
}

func (m *memPlatform) RevokeAuthSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.sessions[sessionID]; ok {
		row.revoked = true
	}
	return nil
}

func (m *memPlatform) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPlatform) CreateProfile(_ context.Context, p *domain.Profile, initialRole domain.Role) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[p.ID]; exists {
		return nil, port.ErrProfileExists
	}
	cp := *p
	m.profiles[p.ID] = &cp
	if initialRole.Valid() {
		m.roles[p.ID] = append(m.roles[p.ID], initialRole)
	}
	out := cp
	return &out, nil
}

func (m *memPlatform) UpdateProfile(_ context.Context, p *domain.Profile) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.profiles[p.ID]
	if !ok {
		return nil, port.ErrUserNotFound
	}
	stored.FullName = p.FullName
	stored.Phone = p.Phone
	stored.AvatarURL = p.AvatarURL
	cp := *stored
	return &cp, nil
}

func (m *memPlatform) TouchLastSignIn(context.Context, string) error { return nil }

func (m *memPlatform) CurrentUserRoles(_ context.Context, sess *domain.Session) ([]domain.Role, error) {
	if sess == nil {
		return nil, port.ErrTokenInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Role(nil), m.roles[sess.UserID]...), nil
}

func (m *memPlatform) UpsertUserRole(_ context.Context, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles[userID] {
		if r == role {
			return nil
		}
	}
	m.roles[userID] = append(m.roles[userID], role)
	return nil
}

func (m *memPlatform) ListUserRoles(_ context.Context, userID string) ([]domain.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Role(nil), m.roles[userID]...), nil
}

func (m *memPlatform) RemoveUserRole(_ context.Context, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.roles[userID][:0]
	for _, r := range m.roles[userID] {
		if r != role {
			kept = append(kept, r)
		}
	}
	m.roles[userID] = kept
	return nil
}

// newAuthApp assembles the auth routes exactly as the server does: public
// signup/signin/refresh first, then the session-gated group.
func newAuthApp(t *testing.T) *fiber.App {
	t.Helper()

	platform := newMemPlatform()
	backend := auth.NewLocalBackend(platform, auth.Config{
		Secret:     "handler-test-secret",
		Issuer:     "landlordnoagent-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})

	mgr := session.NewManager(backend, platform, platform, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr.Start(ctx)

	h := handler.NewAuthHandler(backend, platform, mgr)

	app := fiber.New()
	public := app.Group("/api/v1")
	h.Register(public)

	api := app.Group("/api/v1", middleware.SessionMiddleware(mgr))
	h.RegisterProtected(api)
	return app
}

type authResponse struct {
	Session struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	} `json:"session"`
	Tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
	} `json:"tokens"`
}

type meResponse struct {
	Profile     *domain.Profile `json:"profile"`
	Roles       []string        `json:"roles"`
	PrimaryRole string          `json:"primary_role"`
	Loading     bool            `json:"loading"`
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any, token string) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, app *fiber.App, path, token string, out any) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func signUp(t *testing.T, app *fiber.App, email, role string) authResponse {
	t.Helper()
	resp := postJSON(t, app, "/api/v1/auth/signup", fiber.Map{
		"email":     email,
		"password":  "s3cret-pass",
		"role":      role,
		"full_name": "Test " + role,
	}, "")
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out authResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAuthHandler_SignUp(t *testing.T) {
	t.Run("Should register a renter and open a session", func(t *testing.T) {
		app := newAuthApp(t)
		out := signUp(t, app, "renter@example.com", "renter")

		assert.NotEmpty(t, out.Session.ID)
		assert.NotEmpty(t, out.Session.UserID)
		assert.Equal(t, "renter@example.com", out.Session.Email)
		assert.NotEmpty(t, out.Tokens.AccessToken)
		assert.NotEmpty(t, out.Tokens.RefreshToken)
		assert.Equal(t, "bearer", out.Tokens.TokenType)
	})

	t.Run("Should refuse the admin role at signup", func(t *testing.T) {
		app := newAuthApp(t)
		resp := postJSON(t, app, "/api/v1/auth/signup", fiber.Map{
			"email":     "boss@example.com",
			"password":  "s3cret-pass",
			"role":      "admin",
			"full_name": "Wannabe Admin",
		}, "")
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Should refuse a short password", func(t *testing.T) {
		app := newAuthApp(t)
		resp := postJSON(t, app, "/api/v1/auth/signup", fiber.Map{
			"email":     "renter@example.com",
			"password":  "short",
			"role":      "renter",
			"full_name": "Test Renter",
		}, "")
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Should conflict on a duplicate email", func(t *testing.T) {
		app := newAuthApp(t)
		signUp(t, app, "renter@example.com", "renter")

		resp := postJSON(t, app, "/api/v1/auth/signup", fiber.Map{
			"email":     "renter@example.com",
			"password":  "another-pass",
			"role":      "landlord",
			"full_name": "Second Try",
		}, "")
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})
}

func TestAuthHandler_SignIn(t *testing.T) {
	t.Run("Should open a fresh session for valid credentials", func(t *testing.T) {
		app := newAuthApp(t)
		first := signUp(t, app, "renter@example.com", "renter")

		resp := postJSON(t, app, "/api/v1/auth/signin", fiber.Map{
			"email":    "renter@example.com",
			"password": "s3cret-pass",
		}, "")
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out authResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.NotEmpty(t, out.Session.ID)
		assert.NotEqual(t, first.Session.ID, out.Session.ID)
		assert.Equal(t, first.Session.UserID, out.Session.UserID)
	})

	t.Run("Should reject a wrong password", func(t *testing.T) {
		app := newAuthApp(t)
		signUp(t, app, "renter@example.com", "renter")

		resp := postJSON(t, app, "/api/v1/auth/signin", fiber.Map{
			"email":    "renter@example.com",
			"password": "wrong-pass",
		}, "")
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Should reject an unknown email", func(t *testing.T) {
		app := newAuthApp(t)
		resp := postJSON(t, app, "/api/v1/auth/signin", fiber.Map{
			"email":    "nobody@example.com",
			"password": "whatever-pass",
		}, "")
		defer resp.Body.Close()

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAuthHandler_Session(t *testing.T) {
	t.Run("Should resolve the role set on /auth/me", func(t *testing.T) {
		app := newAuthApp(t)
		out := signUp(t, app, "owner@example.com", "landlord")

		var me meResponse
		status := getJSON(t, app, "/api/v1/auth/me", out.Tokens.AccessToken, &me)
		require.Equal(t, fiber.StatusOK, status)

		assert.False(t, me.Loading)
		assert.Equal(t, []string{"landlord"}, me.Roles)
		assert.Equal(t, "landlord", me.PrimaryRole)
		require.NotNil(t, me.Profile)
		assert.Equal(t, "Test landlord", me.Profile.FullName)
	})

	t.Run("Should update the profile and re-resolve the session", func(t *testing.T) {
		app := newAuthApp(t)
		out := signUp(t, app, "renter@example.com", "renter")

		body, err := json.Marshal(fiber.Map{"full_name": "Named Properly", "phone": "+2348000000000"})
		require.NoError(t, err)
		req := httptest.NewRequest(fiber.MethodPut, "/api/v1/auth/me", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+out.Tokens.AccessToken)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var me meResponse
		status := getJSON(t, app, "/api/v1/auth/me", out.Tokens.AccessToken, &me)
		require.Equal(t, fiber.StatusOK, status)
		require.NotNil(t, me.Profile)
		assert.Equal(t, "Named Properly", me.Profile.FullName)
		assert.Equal(t, "+2348000000000", me.Profile.Phone)
	})

	t.Run("Should rotate the refresh token once", func(t *testing.T) {
		app := newAuthApp(t)
		out := signUp(t, app, "renter@example.com", "renter")

		resp := postJSON(t, app, "/api/v1/auth/refresh", fiber.Map{
			"refresh_token": out.Tokens.RefreshToken,
		}, "")
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var rotated authResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rotated))
		assert.NotEmpty(t, rotated.Tokens.AccessToken)
		assert.NotEqual(t, out.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

		// the consumed refresh token is dead after rotation
		second := postJSON(t, app, "/api/v1/auth/refresh", fiber.Map{
			"refresh_token": out.Tokens.RefreshToken,
		}, "")
		defer second.Body.Close()
		assert.Equal(t, fiber.StatusUnauthorized, second.StatusCode)
	})

	t.Run("Should revoke the session on sign-out", func(t *testing.T) {
		app := newAuthApp(t)
		out := signUp(t, app, "renter@example.com", "renter")

		resp := postJSON(t, app, "/api/v1/auth/signout", nil, out.Tokens.AccessToken)
		resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		// the sign-out event drops the cached session; subsequent requests
		// re-verify against the store and see the revocation
		require.Eventually(t, func() bool {
			req := httptest.NewRequest(fiber.MethodGet, "/api/v1/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+out.Tokens.AccessToken)
			r, err := app.Test(req)
			if err != nil {
				return false
			}
			defer r.Body.Close()
			return r.StatusCode == fiber.StatusUnauthorized
		}, 2*time.Second, 20*time.Millisecond)
	})
}
