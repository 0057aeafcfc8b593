package models

// Timestamps are unix seconds.

type User struct {
	ID            string `gorm:"primaryKey;size:36"          json:"id"`
	Email         string `gorm:"uniqueIndex;not null"        json:"email"`
	Username      string `gorm:"uniqueIndex;not null"        json:"username"`
	PasswordHash  string `gorm:"not null"                    json:"-"`
	Role          string `gorm:"not null;index"              json:"role"`
	EmailVerified bool   `gorm:"not null;default:false"      json:"email_verified"`
	Banned        bool   `gorm:"not null;default:false"      json:"banned"`
	CreatedAt     int64  `gorm:"autoCreateTime"              json:"created_at"`
	UpdatedAt     int64  `gorm:"autoUpdateTime"              json:"updated_at"`
}

// RefreshToken is one link of a rotation chain. A link is live while
// UsedAt and RevokedAt are both zero and ExpiresAt is in the future.
type RefreshToken struct {
	JTI          string `gorm:"primaryKey;size:36"    json:"jti"`
	UserID       string `gorm:"index;not null"        json:"user_id"`
	ChainID      string `gorm:"index;not null"        json:"chain_id"`
	ParentJTI    string `gorm:"index"                 json:"parent_jti,omitempty"`
	TokenHash    string `gorm:"uniqueIndex;not null"  json:"-"`
	IssuedAt     int64  `gorm:"not null"              json:"issued_at"`
	ExpiresAt    int64  `gorm:"index;not null"        json:"expires_at"`
	UsedAt       int64  `gorm:"not null;default:0"    json:"used_at"`
	RevokedAt    int64  `gorm:"not null;default:0"    json:"revoked_at"`
	RevokeReason string `json:"revoke_reason,omitempty"`
	ReplacedBy   string `json:"replaced_by,omitempty"`
}

// RevokedToken is a revocation ledger entry. TokenID is an access/refresh
// jti or a rotation chain id.
type RevokedToken struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenID   string `gorm:"uniqueIndex;not null"     json:"token_id"`
	RevokedAt int64  `gorm:"not null"                 json:"revoked_at"`
	ExpiresAt int64  `gorm:"index;not null"           json:"expires_at"`
}

func All() []any {
	return []any{&User{}, &RefreshToken{}, &RevokedToken{}}
}
