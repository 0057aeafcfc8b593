package domain

import "time"

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID    string
	Role      Role
	TokenID   string
	ChainID   string
	ExpiresAt time.Time
}

// CanManage reports whether id may modify a resource owned by ownerID:
// the owner itself, or any moderator and above.
func CanManage(id Identity, ownerID string) bool {
	if id.Role.Includes(RoleModerator) {
		return true
	}
	return id.UserID != "" && id.UserID == ownerID
}
