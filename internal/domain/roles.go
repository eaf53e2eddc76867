package domain

// Role is one entry of the closed marketplace role vocabulary.
type Role string

const (
	RoleRenter   Role = "renter"
	RoleLandlord Role = "landlord"
	RoleAdmin    Role = "admin"
)

// RoleNone is the sentinel returned when no recognized role is resolved.
// It is never stored and never satisfies Valid().
const RoleNone Role = "none"

// rolePrecedence orders roles for primary-role selection: admin > landlord > renter.
var rolePrecedence = map[Role]int{
	RoleAdmin:    3,
	RoleLandlord: 2,
	RoleRenter:   1,
}

// Valid reports whether the role is part of the recognized vocabulary.
func (r Role) Valid() bool {
	_, ok := rolePrecedence[r]
	return ok
}

// ParseRole converts a raw string (e.g. a legacy profile column value) into a
// Role. Unknown or empty values return RoleNone and false.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if r.Valid() {
		return r, true
	}
	return RoleNone, false
}

// PrimaryRole picks a single role from a resolved set by fixed precedence.
// An empty set, or a set with no recognized role, yields RoleNone.
func PrimaryRole(roles []Role) Role {
	best := RoleNone
	bestRank := 0
	for _, r := range roles {
		if rank := rolePrecedence[r]; rank > bestRank {
			best = r
			bestRank = rank
		}
	}
	return best
}

// RoleAssignment is one row of the authoritative multi-role table.
// A user may hold zero, one, or several assignments.
type RoleAssignment struct {
	UserID string `json:"user_id" db:"user_id"`
	Role   Role   `json:"role"    db:"role"`
}
