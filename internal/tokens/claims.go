package tokens

import "github.com/golang-jwt/jwt/v5"

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindEmail   Kind = "email"
)

type AccessClaims struct {
	Role      string `json:"role"`
	Type      Kind   `json:"typ"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Type      Kind   `json:"typ"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type EmailClaims struct {
	Email string `json:"email"`
	Type  Kind   `json:"typ"`
	jwt.RegisteredClaims
}
