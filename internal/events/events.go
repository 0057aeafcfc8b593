package events

import (
	"context"
	"time"
)

const (
	TypeUserRegistered     = "user_registered"
	TypeUserLoggedIn       = "user_logged_in"
	TypeEmailVerifyRequest = "email_verification_requested"
	TypeEmailVerified      = "email_verified"
	TypePasswordChanged    = "password_changed"
	TypeSessionsRevoked    = "sessions_revoked"
	TypeRefreshReuse       = "refresh_reuse_detected"
	TypeUserBanned         = "user_banned"
	TypeUserUnbanned       = "user_unbanned"
	TypeUserRoleChanged    = "user_role_changed"
)

// Event is published for consumers outside the auth core, e.g. the mail
// sender that delivers verification links.
type Event struct {
	Type       string            `json:"type"`
	UserID     string            `json:"user_id"`
	Email      string            `json:"email,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
