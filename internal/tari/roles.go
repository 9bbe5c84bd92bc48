package tari

// Role is a capability grantable to an address.
type Role string

const (
	RoleUser          Role = "user"
	RoleReadAll       Role = "read_all"
	RoleWrite         Role = "write"
	RolePaymentWallet Role = "payment_wallet"
	RoleSuperAdmin    Role = "super_admin"
)

// RoleSet is a set of Roles assigned to one address. Assignment and removal
// are idempotent set operations.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from a list of roles.
func NewRoleSet(roles ...Role) RoleSet {
	s := make(RoleSet, len(roles))
	for _, r := range roles {
		s[r] = struct{}{}
	}
	return s
}

// Has reports whether the set contains role r.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

// HasAll reports whether the set contains every role in want.
func (s RoleSet) HasAll(want ...Role) bool {
	for _, r := range want {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// Add returns a copy of s with r added.
func (s RoleSet) Add(r Role) RoleSet {
	out := make(RoleSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[r] = struct{}{}
	return out
}

// Remove returns a copy of s with r removed.
func (s RoleSet) Remove(r Role) RoleSet {
	out := make(RoleSet, len(s))
	for k := range s {
		if k != r {
			out[k] = struct{}{}
		}
	}
	return out
}

// Slice returns the roles in the set as a slice, order unspecified.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	return out
}

// MissingCount returns how many of want are absent from s. Used to report
// engineerr.RoleNotAllowed(missing_count).
func (s RoleSet) MissingCount(want ...Role) int {
	missing := 0
	for _, r := range want {
		if !s.Has(r) {
			missing++
		}
	}
	return missing
}
