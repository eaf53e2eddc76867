package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
)

// fakeBackend is an in-memory port.AuthBackend. Tokens map straight to
// sessions; emit pushes events to subscribers the way the real backend does.
type fakeBackend struct {
	mu          sync.Mutex
	byToken     map[string]*domain.Session
	verifyErr   error
	verifyCalls int
	subs        []chan domain.AuthEvent
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{byToken: make(map[string]*domain.Session)}
}

func (f *fakeBackend) ParseToken(token string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.byToken[token]
	if !ok {
		return nil, port.ErrTokenInvalid
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeBackend) SessionFromToken(_ context.Context, token string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	sess, ok := f.byToken[token]
	if !ok {
		return nil, port.ErrTokenInvalid
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeBackend) Subscribe() chan domain.AuthEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan domain.AuthEvent, 16)
	f.subs = append(f.subs, ch)
	return ch
}

func (f *fakeBackend) Unsubscribe(ch chan domain.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == ch {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (f *fakeBackend) emit(eventType domain.AuthEventType, sess *domain.Session) {
	f.mu.Lock()
	subs := make([]chan domain.AuthEvent, len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	for _, ch := range subs {
		ch <- domain.AuthEvent{Type: eventType, Session: sess, At: time.Now()}
	}
}

func (f *fakeBackend) SignUp(context.Context, string, string, domain.SignupMetadata) (*domain.Session, *domain.TokenPair, error) {
	return nil, nil, errors.New("not used")
}

func (f *fakeBackend) SignIn(context.Context, string, string) (*domain.Session, *domain.TokenPair, error) {
	return nil, nil, errors.New("not used")
}

func (f *fakeBackend) SignOut(context.Context, string) error { return errors.New("not used") }

func (f *fakeBackend) Refresh(context.Context, string) (*domain.Session, *domain.TokenPair, error) {
	return nil, nil, errors.New("not used")
}

// fakeProfiles is an in-memory port.ProfileStore. getMisses makes the next
// N lookups report no row, so tests can stage a lost creation race.
type fakeProfiles struct {
	mu        sync.Mutex
	profiles  map[string]*domain.Profile
	getErr    error
	createErr error
	getMisses int
	// initialRoles records the role passed alongside each CreateProfile.
	initialRoles []domain.Role
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: make(map[string]*domain.Profile)}
}

func (f *fakeProfiles) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getMisses > 0 {
		f.getMisses--
		return nil, nil
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) CreateProfile(_ context.Context, p *domain.Profile, initialRole domain.Role) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialRoles = append(f.initialRoles, initialRole)
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.profiles[p.ID]; ok {
		return nil, port.ErrProfileExists
	}
	cp := *p
	f.profiles[p.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeProfiles) UpdateProfile(_ context.Context, p *domain.Profile) (*domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.profiles[p.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeProfiles) TouchLastSignIn(context.Context, string) error { return nil }

func (f *fakeProfiles) set(p *domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
}

// fakeRoles is an in-memory port.RoleStore. The optional hook overrides
// CurrentUserRoles per call so tests can block or stagger resolutions.
type fakeRoles struct {
	mu      sync.Mutex
	roles   map[string][]domain.Role
	err     error
	upserts []domain.RoleAssignment
	hook    func(call int, ctx context.Context) ([]domain.Role, error)
	calls   int
}

func newFakeRoles() *fakeRoles {
	return &fakeRoles{roles: make(map[string][]domain.Role)}
}

func (f *fakeRoles) CurrentUserRoles(ctx context.Context, sess *domain.Session) ([]domain.Role, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	hook := f.hook
	err := f.err
	set := append([]domain.Role(nil), f.roles[sess.UserID]...)
	f.mu.Unlock()

	if hook != nil {
		return hook(call, ctx)
	}
	if err != nil {
		return nil, err
	}
	return set, nil
}

func (f *fakeRoles) UpsertUserRole(_ context.Context, userID string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, domain.RoleAssignment{UserID: userID, Role: role})
	for _, r := range f.roles[userID] {
		if r == role {
			return nil
		}
	}
	f.roles[userID] = append(f.roles[userID], role)
	return nil
}

func (f *fakeRoles) ListUserRoles(_ context.Context, userID string) ([]domain.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Role(nil), f.roles[userID]...), nil
}

func (f *fakeRoles) RemoveUserRole(_ context.Context, userID string, role domain.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.roles[userID][:0]
	for _, r := range f.roles[userID] {
		if r != role {
			kept = append(kept, r)
		}
	}
	f.roles[userID] = kept
	return nil
}

func (f *fakeRoles) set(userID string, roles ...domain.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = roles
}

func (f *fakeRoles) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

type fixture struct {
	manager  *session.Manager
	backend  *fakeBackend
	profiles *fakeProfiles
	roles    *fakeRoles
}

const (
	testToken     = "tok-1"
	testSessionID = "sess-1"
	testUserID    = "user-1"
)

// newFixture wires a started manager over fakes pre-seeded with one renter
// session.
func newFixture(t *testing.T, resolveTimeout time.Duration) *fixture {
	t.Helper()

	backend := newFakeBackend()
	backend.byToken[testToken] = &domain.Session{
		ID:        testSessionID,
		UserID:    testUserID,
		Email:     "renter@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	profiles := newFakeProfiles()
	profiles.set(&domain.Profile{ID: testUserID, Email: "renter@example.com", FullName: "Test Renter"})

	roles := newFakeRoles()
	roles.set(testUserID, domain.RoleRenter)

	manager := session.NewManager(backend, profiles, roles, resolveTimeout)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	manager.Start(ctx)

	return &fixture{manager: manager, backend: backend, profiles: profiles, roles: roles}
}

func (fx *fixture) resolve(t *testing.T, token string) *session.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := fx.manager.Resolve(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, snap)
	return snap
}

func TestManager_Resolve(t *testing.T) {
	t.Run("Should resolve roles from the assignment store", func(t *testing.T) {
		fx := newFixture(t, time.Second)

		snap := fx.resolve(t, testToken)

		assert.False(t, snap.Loading())
		assert.True(t, snap.HasRole(domain.RoleRenter))
		assert.False(t, snap.HasRole(domain.RoleLandlord))
		assert.False(t, snap.HasRole(domain.RoleAdmin))
		assert.Equal(t, domain.RoleRenter, snap.PrimaryRole())
		require.NotNil(t, snap.Profile())
		assert.Equal(t, "Test Renter", snap.Profile().FullName)
	})

	t.Run("Should deny everything when the user has no roles", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.set(testUserID)

		snap := fx.resolve(t, testToken)

		assert.False(t, snap.Loading())
		assert.Empty(t, snap.Roles())
		assert.False(t, snap.HasRole(domain.RoleRenter))
		assert.Equal(t, domain.RoleNone, snap.PrimaryRole())
	})

	t.Run("Should fall back to the legacy profile role when the lookup fails", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.set(testUserID)
		fx.roles.err = errors.New("rpc unavailable")
		fx.profiles.set(&domain.Profile{ID: testUserID, Role: "landlord"})

		snap := fx.resolve(t, testToken)

		assert.True(t, snap.HasRole(domain.RoleLandlord))
		assert.Equal(t, domain.RoleLandlord, snap.PrimaryRole())
	})

	t.Run("Should heal the assignment table from the legacy role", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.set(testUserID)
		fx.profiles.set(&domain.Profile{ID: testUserID, Role: "renter"})

		fx.resolve(t, testToken)

		fx.roles.mu.Lock()
		upserts := append([]domain.RoleAssignment(nil), fx.roles.upserts...)
		fx.roles.mu.Unlock()
		require.Len(t, upserts, 1)
		assert.Equal(t, testUserID, upserts[0].UserID)
		assert.Equal(t, domain.RoleRenter, upserts[0].Role)
	})

	t.Run("Should not invent a role when lookup fails and no legacy role exists", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.err = errors.New("rpc unavailable")
		fx.profiles.set(&domain.Profile{ID: testUserID})

		snap := fx.resolve(t, testToken)

		assert.False(t, snap.Loading())
		assert.Empty(t, snap.Roles())
		assert.Equal(t, domain.RoleNone, snap.PrimaryRole())
		assert.Zero(t, fx.roles.upsertCount())
	})

	t.Run("Should ignore an unrecognized legacy role", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.set(testUserID)
		fx.profiles.set(&domain.Profile{ID: testUserID, Role: "superuser"})

		snap := fx.resolve(t, testToken)

		assert.Empty(t, snap.Roles())
		assert.Zero(t, fx.roles.upsertCount())
	})

	t.Run("Should create the profile from signup metadata on first resolution", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.profiles = newFakeProfiles() // no profile row yet
		fx.roles.set(testUserID)
		fx.backend.byToken[testToken].Metadata = domain.SignupMetadata{
			Role:     domain.RoleLandlord,
			FullName: "Ada Lovelace",
		}
		manager := session.NewManager(fx.backend, fx.profiles, fx.roles, time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		snap, err := manager.Resolve(ctx, testToken)

		require.NoError(t, err)
		require.NotNil(t, snap.Profile())
		assert.Equal(t, "Ada Lovelace", snap.Profile().FullName)
		assert.True(t, snap.HasRole(domain.RoleLandlord))
		require.Len(t, fx.profiles.initialRoles, 1)
		assert.Equal(t, domain.RoleLandlord, fx.profiles.initialRoles[0])
	})

	t.Run("Should refetch the profile after losing the creation race", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		profiles := newFakeProfiles()
		// First lookup misses, the create collides with the winner's row,
		// and the refetch finds it.
		profiles.getMisses = 1
		profiles.createErr = port.ErrProfileExists
		profiles.set(&domain.Profile{ID: testUserID, FullName: "Race Winner"})
		manager := session.NewManager(fx.backend, profiles, fx.roles, time.Second)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snap, err := manager.Resolve(ctx, testToken)

		require.NoError(t, err)
		require.NotNil(t, snap.Profile())
		assert.Equal(t, "Race Winner", snap.Profile().FullName)
	})

	t.Run("Should return the loading snapshot when the caller gives up waiting", func(t *testing.T) {
		fx := newFixture(t, 5*time.Second)
		release := make(chan struct{})
		defer close(release)
		fx.roles.mu.Lock()
		fx.roles.hook = func(_ int, ctx context.Context) ([]domain.Role, error) {
			select {
			case <-release:
				return []domain.Role{domain.RoleRenter}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		fx.roles.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()
		snap, err := fx.manager.Resolve(ctx, testToken)

		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.True(t, snap.Loading())
		assert.False(t, snap.HasRole(domain.RoleRenter))
		assert.Equal(t, domain.RoleNone, snap.PrimaryRole())
	})

	t.Run("Should resolve with an empty role set when resolution times out", func(t *testing.T) {
		fx := newFixture(t, 50*time.Millisecond)
		fx.roles.mu.Lock()
		fx.roles.hook = func(_ int, ctx context.Context) ([]domain.Role, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		fx.roles.mu.Unlock()

		snap := fx.resolve(t, testToken)

		assert.False(t, snap.Loading())
		assert.Empty(t, snap.Roles())
		assert.False(t, snap.HasRole(domain.RoleRenter))
	})

	t.Run("Should reject an invalid token", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		ctx := context.Background()

		snap, err := fx.manager.Resolve(ctx, "garbage")

		assert.ErrorIs(t, err, port.ErrTokenInvalid)
		assert.Nil(t, snap)
	})

	t.Run("Should reject a token whose user does not match the tracked session", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.resolve(t, testToken)

		fx.backend.mu.Lock()
		fx.backend.byToken["forged"] = &domain.Session{
			ID:     testSessionID,
			UserID: "someone-else",
		}
		fx.backend.mu.Unlock()

		ctx := context.Background()
		snap, err := fx.manager.Resolve(ctx, "forged")

		assert.ErrorIs(t, err, port.ErrTokenInvalid)
		assert.Nil(t, snap)
	})

	t.Run("Should propagate bootstrap verification failure and retry next time", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.backend.mu.Lock()
		fx.backend.verifyErr = port.ErrSessionRevoked
		fx.backend.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		snap, err := fx.manager.Resolve(ctx, testToken)
		assert.ErrorIs(t, err, port.ErrSessionRevoked)
		assert.Nil(t, snap)
		assert.Zero(t, fx.manager.Sessions())

		fx.backend.mu.Lock()
		fx.backend.verifyErr = nil
		fx.backend.mu.Unlock()

		snap = fx.resolve(t, testToken)
		assert.True(t, snap.HasRole(domain.RoleRenter))
	})

	t.Run("Should verify with the backend only once per session", func(t *testing.T) {
		fx := newFixture(t, time.Second)

		fx.resolve(t, testToken)
		fx.resolve(t, testToken)
		fx.resolve(t, testToken)

		fx.backend.mu.Lock()
		calls := fx.backend.verifyCalls
		fx.backend.mu.Unlock()
		assert.Equal(t, 1, calls)
	})
}

func TestManager_Events(t *testing.T) {
	t.Run("Should drop the session on sign-out", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		snap := fx.resolve(t, testToken)

		fx.backend.emit(domain.AuthEventSignedOut, &domain.Session{ID: testSessionID, UserID: testUserID})

		require.Eventually(t, func() bool {
			return fx.manager.Peek(testSessionID) == nil
		}, time.Second, 5*time.Millisecond)

		select {
		case <-snap.Done():
		case <-time.After(time.Second):
			t.Fatal("done channel did not fire after sign-out")
		}
	})

	t.Run("Should re-verify a dropped session on its next request", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.resolve(t, testToken)

		fx.backend.emit(domain.AuthEventSignedOut, &domain.Session{ID: testSessionID, UserID: testUserID})
		require.Eventually(t, func() bool {
			return fx.manager.Peek(testSessionID) == nil
		}, time.Second, 5*time.Millisecond)

		fx.resolve(t, testToken)

		fx.backend.mu.Lock()
		calls := fx.backend.verifyCalls
		fx.backend.mu.Unlock()
		assert.Equal(t, 2, calls)
	})

	t.Run("Should only drop the signed-out session", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.backend.byToken["tok-2"] = &domain.Session{
			ID:        "sess-2",
			UserID:    testUserID,
			Email:     "renter@example.com",
			ExpiresAt: time.Now().Add(time.Hour),
		}
		fx.resolve(t, testToken)
		fx.resolve(t, "tok-2")

		fx.backend.emit(domain.AuthEventSignedOut, &domain.Session{ID: testSessionID, UserID: testUserID})

		require.Eventually(t, func() bool {
			return fx.manager.Peek(testSessionID) == nil
		}, time.Second, 5*time.Millisecond)
		other := fx.manager.Peek("sess-2")
		require.NotNil(t, other)
		assert.True(t, other.HasRole(domain.RoleRenter))
	})

	t.Run("Should keep another user's concurrent sign-in intact across a sign-out", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.backend.byToken["tok-b"] = &domain.Session{
			ID:        "sess-b",
			UserID:    "user-b",
			Email:     "landlord@example.com",
			ExpiresAt: time.Now().Add(time.Hour),
		}
		fx.profiles.set(&domain.Profile{ID: "user-b", Email: "landlord@example.com", FullName: "Other User"})
		fx.roles.set("user-b", domain.RoleLandlord)

		aSnap := fx.resolve(t, testToken)
		fx.resolve(t, "tok-b")

		// A signs out in the same breath as B's sign-in lands.
		fx.backend.emit(domain.AuthEventSignedOut, &domain.Session{ID: testSessionID, UserID: testUserID})
		fx.backend.emit(domain.AuthEventSignedIn, fx.backend.byToken["tok-b"])

		require.Eventually(t, func() bool {
			return fx.manager.Peek(testSessionID) == nil
		}, time.Second, 5*time.Millisecond)
		select {
		case <-aSnap.Done():
		case <-time.After(time.Second):
			t.Fatal("signed-out session's done channel never fired")
		}

		require.Eventually(t, func() bool {
			b := fx.manager.Peek("sess-b")
			return b != nil && !b.Loading() && b.HasRole(domain.RoleLandlord)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Should re-resolve on token refresh", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		snap := fx.resolve(t, testToken)
		assert.False(t, snap.HasRole(domain.RoleLandlord))

		fx.roles.set(testUserID, domain.RoleRenter, domain.RoleLandlord)
		fx.backend.emit(domain.AuthEventTokenRefreshed, fx.backend.byToken[testToken])

		require.Eventually(t, func() bool {
			cur := fx.manager.Peek(testSessionID)
			return cur != nil && cur.HasRole(domain.RoleLandlord)
		}, time.Second, 5*time.Millisecond)
	})
}

func TestManager_RefreshUser(t *testing.T) {
	t.Run("Should pick up a role grant for a live session", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		snap := fx.resolve(t, testToken)
		assert.False(t, snap.HasRole(domain.RoleLandlord))

		fx.roles.set(testUserID, domain.RoleRenter, domain.RoleLandlord)
		fx.manager.RefreshUser(testUserID)

		require.Eventually(t, func() bool {
			cur := fx.manager.Peek(testSessionID)
			return cur != nil && cur.HasRole(domain.RoleLandlord)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Should pick up a role revocation for a live session", func(t *testing.T) {
		fx := newFixture(t, time.Second)
		fx.roles.set(testUserID, domain.RoleRenter, domain.RoleLandlord)
		snap := fx.resolve(t, testToken)
		assert.True(t, snap.HasRole(domain.RoleLandlord))

		fx.roles.set(testUserID, domain.RoleRenter)
		fx.manager.RefreshUser(testUserID)

		require.Eventually(t, func() bool {
			cur := fx.manager.Peek(testSessionID)
			return cur != nil && !cur.Loading() && !cur.HasRole(domain.RoleLandlord)
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Should discard a stale resolution superseded by a restart", func(t *testing.T) {
		fx := newFixture(t, 5*time.Second)
		firstStarted := make(chan struct{})
		releaseFirst := make(chan struct{})
		fx.roles.mu.Lock()
		fx.roles.hook = func(call int, ctx context.Context) ([]domain.Role, error) {
			if call == 1 {
				close(firstStarted)
				select {
				case <-releaseFirst:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				return []domain.Role{domain.RoleRenter}, nil
			}
			return []domain.Role{domain.RoleAdmin}, nil
		}
		fx.roles.mu.Unlock()

		resolved := make(chan *session.Snapshot, 1)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			snap, err := fx.manager.Resolve(ctx, testToken)
			if err == nil {
				resolved <- snap
			}
		}()

		<-firstStarted
		fx.manager.RefreshUser(testUserID)

		// The restarted cycle publishes admin. Releasing the first cycle
		// afterwards must not overwrite it.
		require.Eventually(t, func() bool {
			cur := fx.manager.Peek(testSessionID)
			return cur != nil && cur.HasRole(domain.RoleAdmin)
		}, 2*time.Second, 5*time.Millisecond)
		close(releaseFirst)

		select {
		case snap := <-resolved:
			assert.True(t, snap.HasRole(domain.RoleAdmin))
			assert.False(t, snap.HasRole(domain.RoleRenter))
		case <-time.After(2 * time.Second):
			t.Fatal("waiter never observed the restarted resolution")
		}

		cur := fx.manager.Peek(testSessionID)
		require.NotNil(t, cur)
		assert.True(t, cur.HasRole(domain.RoleAdmin))
		assert.False(t, cur.HasRole(domain.RoleRenter))
	})
}
