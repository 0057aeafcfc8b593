package domain

import "strings"

type Role string

const (
	// RoleUser is the regular account role.
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	return r.rank() > 0
}

func (r Role) String() string { return string(r) }

// bigger => higher privilege
func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleModerator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Includes reports whether r carries every capability of required
// (admin ⊇ moderator ⊇ user). Unknown roles include nothing.
func (r Role) Includes(required Role) bool {
	if !r.Valid() || !required.Valid() {
		return false
	}
	return r.rank() >= required.rank()
}

// Policy is an authorization requirement checked by the access guard.
// Either a minimum role in the partial order or an explicit role set.
type Policy struct {
	atLeast Role
	anyOf   []Role
}

func AtLeast(r Role) Policy { return Policy{atLeast: r} }

func AnyOf(roles ...Role) Policy { return Policy{anyOf: roles} }

// Authenticated accepts any valid role.
func Authenticated() Policy { return AtLeast(RoleUser) }

func (p Policy) Allows(r Role) bool {
	if !r.Valid() {
		return false
	}
	if len(p.anyOf) > 0 {
		for _, allowed := range p.anyOf {
			if allowed == r {
				return true
			}
		}
		return false
	}
	if p.atLeast == "" {
		return false
	}
	return r.Includes(p.atLeast)
}

func (p Policy) String() string {
	if len(p.anyOf) > 0 {
		parts := make([]string, 0, len(p.anyOf))
		for _, r := range p.anyOf {
			parts = append(parts, string(r))
		}
		return "any_of:" + strings.Join(parts, ",")
	}
	return "at_least:" + string(p.atLeast)
}
