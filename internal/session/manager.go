package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
)

// DefaultResolveTimeout bounds one resolution attempt. A resolution that
// outlives it completes with an empty role set, which denies everything.
const DefaultResolveTimeout = 10 * time.Second

// Manager owns the resolved auth state for every session the server has seen.
// Each session is verified against the auth backend exactly once, on first
// use; after that, requests carry a signed token that is checked statelessly
// and served from the cached entry. The change listener keeps entries honest:
// a sign-out drops the entry immediately, so no stale role set outlives its
// session.
type Manager struct {
	backend  port.AuthBackend
	profiles port.ProfileStore
	roles    port.RoleStore
	timeout  time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	events chan domain.AuthEvent
	once   sync.Once
}

// entry is the per-session resolution state machine:
// uninitialized -> resolving -> ready. Re-resolution (refresh, profile
// update) returns to resolving under a bumped generation; a completed
// attempt whose generation no longer matches is discarded.
type entry struct {
	session    *domain.Session
	generation uint64
	state      State

	profile    *domain.Profile
	roles      []domain.Role
	resolvedAt time.Time
	err        error

	// ready is re-made per resolution cycle and closed when that cycle
	// finishes or is superseded. done is closed exactly once, when the
	// session ends.
	ready  chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewManager creates a session manager over the given ports. A non-positive
// resolveTimeout selects DefaultResolveTimeout.
func NewManager(backend port.AuthBackend, profiles port.ProfileStore, roles port.RoleStore, resolveTimeout time.Duration) *Manager {
	if resolveTimeout <= 0 {
		resolveTimeout = DefaultResolveTimeout
	}
	return &Manager{
		backend:  backend,
		profiles: profiles,
		roles:    roles,
		timeout:  resolveTimeout,
		entries:  make(map[string]*entry),
	}
}

// Start subscribes the change listener to the auth backend's event feed.
// It returns immediately; the listener runs until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.once.Do(func() {
		m.events = m.backend.Subscribe()
		go m.listen(ctx)
	})
}

// Resolve maps an access token to its session snapshot. The token signature
// and expiry are checked on every call; the backend round-trip happens only
// the first time a session is seen. Resolve waits for an in-flight resolution
// to finish unless ctx ends first, in which case it returns the loading
// snapshot and lets the deny-by-default gate handle it.
func (m *Manager) Resolve(ctx context.Context, accessToken string) (*Snapshot, error) {
	claimed, err := m.backend.ParseToken(accessToken)
	if err != nil {
		return nil, err
	}

	e, bootstrap := m.lookupOrCreate(claimed)
	if e == nil {
		return nil, port.ErrTokenInvalid
	}
	if bootstrap {
		go m.bootstrap(e, accessToken, claimed)
	}

	for {
		m.mu.RLock()
		state, entryErr, ready := e.state, e.err, e.ready
		var snap *Snapshot
		if state == StateReady {
			snap = m.snapshotLocked(e)
		}
		m.mu.RUnlock()

		if entryErr != nil {
			return nil, entryErr
		}
		if snap != nil {
			return snap, nil
		}

		select {
		case <-ready:
		case <-e.done:
			m.mu.RLock()
			entryErr = e.err
			m.mu.RUnlock()
			if entryErr == nil {
				entryErr = port.ErrSessionRevoked
			}
			return nil, entryErr
		case <-ctx.Done():
			m.mu.RLock()
			snap = m.snapshotLocked(e)
			m.mu.RUnlock()
			return snap, nil
		}
	}
}

// Peek returns the snapshot for a session id without resolving anything,
// or nil when the session is unknown.
func (m *Manager) Peek(sessionID string) *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return nil
	}
	return m.snapshotLocked(e)
}

// RefreshProfile re-runs resolution for a live session, picking up profile
// edits and role grants. Unknown sessions are ignored.
func (m *Manager) RefreshProfile(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[sessionID]
	if !ok {
		return
	}
	m.restartLocked(e, e.session)
}

// RefreshUser re-runs resolution for every live session of a user, so role
// grants and revocations reach sessions that are already signed in.
func (m *Manager) RefreshUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.session != nil && e.session.UserID == userID {
			m.restartLocked(e, e.session)
		}
	}
}

// Sessions reports how many sessions are currently tracked.
func (m *Manager) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// lookupOrCreate returns the tracked entry for the claimed session, creating
// an unresolved one on first sight. The second return is true when the caller
// must run the bootstrap verification.
func (m *Manager) lookupOrCreate(claimed *domain.Session) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[claimed.ID]; ok {
		if e.session != nil && e.session.UserID != claimed.UserID {
			return nil, false
		}
		return e, false
	}

	e := &entry{
		session: claimed,
		state:   StateUninitialized,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.entries[claimed.ID] = e
	return e, true
}

// bootstrap verifies a first-seen session with the backend, then resolves it.
// Verification failure removes the entry so the next request re-checks.
func (m *Manager) bootstrap(e *entry, accessToken string, claimed *domain.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	verified, err := m.backend.SessionFromToken(ctx, accessToken)
	if err != nil {
		slog.Warn("session bootstrap rejected", "session_id", claimed.ID, "error", err)
		m.mu.Lock()
		// skip when a sign-out already dropped the entry and closed its channels
		if cur, ok := m.entries[claimed.ID]; ok && cur == e {
			delete(m.entries, claimed.ID)
			e.err = err
			close(e.ready)
			close(e.done)
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	cur, ok := m.entries[claimed.ID]
	if !ok || cur != e {
		m.mu.Unlock()
		return
	}
	e.session = verified
	e.state = StateResolving
	e.generation++
	gen := e.generation
	rctx, rcancel := context.WithTimeout(context.Background(), m.timeout)
	e.cancel = rcancel
	m.mu.Unlock()

	m.resolveEntry(rctx, rcancel, e, verified, gen)
}

// restartLocked begins a new resolution cycle for an existing entry. Callers
// hold m.mu. The previous cycle, if unfinished, is cancelled and its waiters
// released; its eventual result fails the generation check and is discarded.
func (m *Manager) restartLocked(e *entry, sess *domain.Session) {
	if e.cancel != nil {
		e.cancel()
	}
	if e.state != StateReady {
		close(e.ready)
	}
	if sess != nil {
		e.session = sess
	}
	e.state = StateResolving
	e.err = nil
	e.ready = make(chan struct{})
	e.generation++
	gen := e.generation

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	e.cancel = cancel
	go m.resolveEntry(ctx, cancel, e, e.session, gen)
}

// resolveEntry runs one resolution attempt: profile and roles fetched
// concurrently, the legacy-role fallback applied only after both return, and
// the result published only if the attempt's generation still matches.
func (m *Manager) resolveEntry(ctx context.Context, cancel context.CancelFunc, e *entry, sess *domain.Session, gen uint64) {
	defer cancel()

	var (
		wg       sync.WaitGroup
		profile  *domain.Profile
		rpcRoles []domain.Role
		rpcErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		profile = m.ensureProfile(ctx, sess)
	}()
	go func() {
		defer wg.Done()
		rpcRoles, rpcErr = m.roles.CurrentUserRoles(ctx, sess)
	}()
	wg.Wait()

	roles := rpcRoles
	if rpcErr != nil || len(roles) == 0 {
		if rpcErr != nil {
			slog.Warn("role lookup failed, trying legacy profile role",
				"user_id", sess.UserID, "error", rpcErr)
		}
		roles = m.legacyRoleFallback(ctx, sess, profile)
	}

	if ctx.Err() != nil {
		slog.Warn("session resolution timed out, denying by default",
			"session_id", sess.ID, "user_id", sess.UserID)
		roles = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[sess.ID]
	if !ok || cur != e || e.generation != gen {
		// superseded by sign-out or a newer attempt
		return
	}
	e.profile = profile
	e.roles = roles
	e.state = StateReady
	e.resolvedAt = time.Now()
	close(e.ready)

	slog.Info("session resolved",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"roles", len(roles),
	)
}

// ensureProfile fetches the user's profile, creating it from the sign-up
// metadata when absent. Lookup failures resolve to nil: the session stays
// usable, the missing profile just denies everything role-gated.
func (m *Manager) ensureProfile(ctx context.Context, sess *domain.Session) *domain.Profile {
	profile, err := m.profiles.GetProfile(ctx, sess.UserID)
	if err != nil {
		slog.Error("profile lookup failed", "user_id", sess.UserID, "error", err)
		return nil
	}

	if profile == nil {
		fresh := &domain.Profile{
			ID:       sess.UserID,
			Email:    sess.Email,
			FullName: sess.Metadata.FullName,
			Role:     string(sess.Metadata.Role),
		}
		profile, err = m.profiles.CreateProfile(ctx, fresh, sess.Metadata.Role)
		if errors.Is(err, port.ErrProfileExists) {
			// lost the creation race; the winner's row is authoritative
			profile, err = m.profiles.GetProfile(ctx, sess.UserID)
		}
		if err != nil {
			slog.Error("profile create failed", "user_id", sess.UserID, "error", err)
			return nil
		}
	}

	if err := m.profiles.TouchLastSignIn(ctx, sess.UserID); err != nil {
		slog.Debug("last sign-in stamp failed", "user_id", sess.UserID, "error", err)
	}
	return profile
}

// legacyRoleFallback derives the role set from the profile's legacy single
// role column and heals the assignment table with an idempotent upsert. With
// no legacy role either, the set stays empty; a role is never invented.
func (m *Manager) legacyRoleFallback(ctx context.Context, sess *domain.Session, profile *domain.Profile) []domain.Role {
	if profile == nil || profile.Role == "" {
		return nil
	}
	legacy, ok := domain.ParseRole(profile.Role)
	if !ok {
		slog.Warn("unrecognized legacy role ignored", "user_id", sess.UserID, "role", profile.Role)
		return nil
	}
	if err := m.roles.UpsertUserRole(ctx, sess.UserID, legacy); err != nil {
		slog.Warn("legacy role upsert failed", "user_id", sess.UserID, "error", err)
	}
	return []domain.Role{legacy}
}

// listen consumes the auth backend's event feed until ctx ends.
func (m *Manager) listen(ctx context.Context) {
	defer m.backend.Unsubscribe(m.events)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-m.events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev domain.AuthEvent) {
	if ev.Session == nil {
		return
	}
	switch ev.Type {
	case domain.AuthEventSignedOut:
		m.drop(ev.Session.ID)
	case domain.AuthEventSignedIn, domain.AuthEventTokenRefreshed:
		m.mu.Lock()
		if e, ok := m.entries[ev.Session.ID]; ok {
			m.restartLocked(e, ev.Session)
		}
		m.mu.Unlock()
	}
}

// drop removes a session entry immediately. Waiters and long-lived streams
// observe the done channel; a resolution still in flight is cancelled and its
// late result discarded by the generation check.
func (m *Manager) drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[sessionID]
	if !ok {
		return
	}
	delete(m.entries, sessionID)
	if e.cancel != nil {
		e.cancel()
	}
	e.err = port.ErrSessionRevoked
	if e.state != StateReady {
		close(e.ready)
	}
	close(e.done)

	slog.Info("session dropped", "session_id", sessionID)
}

// snapshotLocked copies an entry into an immutable view. Callers hold m.mu.
func (m *Manager) snapshotLocked(e *entry) *Snapshot {
	snap := &Snapshot{
		state:      e.state,
		resolvedAt: e.resolvedAt,
		done:       e.done,
	}
	if e.session != nil {
		sess := *e.session
		snap.session = &sess
	}
	if e.profile != nil {
		p := *e.profile
		snap.profile = &p
	}
	if len(e.roles) > 0 {
		snap.roles = make([]domain.Role, len(e.roles))
		copy(snap.roles, e.roles)
	}
	return snap
}
