package service

import (
	"context"
	"time"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/models"
)

// Ledger is the session revocation ledger. An id stays revoked at least
// until the expiry passed to Revoke.
type Ledger interface {
	Revoke(ctx context.Context, id string, expiry time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
	Prune(ctx context.Context, now time.Time) (int64, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	SetBanned(ctx context.Context, id string, banned bool) error
	SetRoleGuarded(ctx context.Context, id string, role domain.Role) error
	SetEmailVerified(ctx context.Context, id string) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type RefreshStore interface {
	SaveRefresh(ctx context.Context, t *models.RefreshToken) error
	RotateRefresh(ctx context.Context, oldJTI, fingerprint string, next *models.RefreshToken, now int64) error
	RevokeChain(ctx context.Context, chainID, reason string, now int64) (int64, error)
	RevokeUserChains(ctx context.Context, userID, reason string, now int64) ([]string, error)
	PruneRefresh(ctx context.Context, cutoff int64) (int64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

type AuditReader interface {
	Search(ctx context.Context, userID string, from, size int) (int64, []audit.Record, error)
}
