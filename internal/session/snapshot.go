package session

import (
	"time"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
)

// State tracks how far a session entry has progressed through resolution.
type State int

const (
	StateUninitialized State = iota
	StateResolving
	StateReady
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Snapshot is a read-only view of one session's resolved state. Authorization
// decisions go through HasRole and PrimaryRole, which consult only the
// resolved role set and deny while resolution is still in flight.
type Snapshot struct {
	session    *domain.Session
	profile    *domain.Profile
	roles      []domain.Role
	state      State
	resolvedAt time.Time
	done       <-chan struct{}
}

// Session returns the authenticated session.
func (s *Snapshot) Session() *domain.Session {
	if s == nil {
		return nil
	}
	return s.session
}

// UserID returns the session's user id, or "" for a nil snapshot.
func (s *Snapshot) UserID() string {
	if s == nil || s.session == nil {
		return ""
	}
	return s.session.UserID
}

// Profile returns the resolved profile, nil while loading or when the user
// has no profile row.
func (s *Snapshot) Profile() *domain.Profile {
	if s == nil {
		return nil
	}
	return s.profile
}

// Roles returns a copy of the resolved role set.
func (s *Snapshot) Roles() []domain.Role {
	if s == nil || len(s.roles) == 0 {
		return nil
	}
	out := make([]domain.Role, len(s.roles))
	copy(out, s.roles)
	return out
}

// State returns the entry's resolution state at snapshot time.
func (s *Snapshot) State() State {
	if s == nil {
		return StateUninitialized
	}
	return s.state
}

// Loading reports whether resolution is still in flight. A loading snapshot
// fails every role check.
func (s *Snapshot) Loading() bool {
	return s == nil || s.state != StateReady
}

// ResolvedAt returns when resolution completed, zero while loading.
func (s *Snapshot) ResolvedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.resolvedAt
}

// HasRole reports whether the resolved role set contains role. It is false
// while loading and false for an empty or unknown set: absence of proof is
// denial.
func (s *Snapshot) HasRole(role domain.Role) bool {
	if s.Loading() {
		return false
	}
	for _, r := range s.roles {
		if r == role {
			return true
		}
	}
	return false
}

// PrimaryRole returns the highest-precedence resolved role
// (admin > landlord > renter), or RoleNone while loading or with no roles.
func (s *Snapshot) PrimaryRole() domain.Role {
	if s.Loading() {
		return domain.RoleNone
	}
	return domain.PrimaryRole(s.roles)
}

// Done returns a channel closed when the session ends, by sign-out or
// revocation. Long-lived consumers such as event streams select on it and
// terminate when it fires.
func (s *Snapshot) Done() <-chan struct{} {
	if s == nil || s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}
