package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/models"
)

// Ledger is the relational revocation ledger.
type Ledger struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{DB: db, Now: time.Now}
}

// Revoke records id until expiry. Revoking an id twice keeps the later
// expiry so an entry never shrinks.
func (l *Ledger) Revoke(ctx context.Context, id string, expiry time.Time) error {
	entry := models.RevokedToken{
		TokenID:   id,
		RevokedAt: l.Now().Unix(),
		ExpiresAt: expiry.Unix(),
	}
	err := l.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"expires_at": gorm.Expr("CASE WHEN excluded.expires_at > revoked_tokens.expires_at THEN excluded.expires_at ELSE revoked_tokens.expires_at END"),
		}),
	}).Create(&entry).Error
	if err != nil {
		return domain.Infra("ledger.revoke", err)
	}
	return nil
}

func (l *Ledger) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var n int64
	if err := l.DB.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("token_id = ?", id).
		Count(&n).Error; err != nil {
		return false, domain.Infra("ledger.is_revoked", err)
	}
	return n > 0, nil
}

// Prune removes entries whose expiry is strictly before now.
func (l *Ledger) Prune(ctx context.Context, now time.Time) (int64, error) {
	res := l.DB.WithContext(ctx).Where("expires_at < ?", now.Unix()).Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, domain.Infra("ledger.prune", res.Error)
	}
	return res.RowsAffected, nil
}
