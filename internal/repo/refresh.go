package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/models"
)

const (
	ReasonRotated = "rotated"
	ReasonLogout  = "logout"
	ReasonReuse   = "reuse_detected"
)

func (r *GormRepo) SaveRefresh(ctx context.Context, t *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Create(t).Error; err != nil {
		return domain.Infra("repo.save_refresh", err)
	}
	return nil
}

func (r *GormRepo) FindRefresh(ctx context.Context, jti string) (*models.RefreshToken, error) {
	var t models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&t).Error; err != nil {
		return nil, notFoundOr("repo.find_refresh", err)
	}
	return &t, nil
}

// RotateRefresh marks the link oldJTI as used and inserts next in one
// transaction. The mark is a compare-and-set on a live link, so of two
// concurrent rotations of the same token exactly one commits.
//
// On failure nothing is written and the error tells why the old link was
// not live: domain.ErrRefreshReuse (already used), domain.ErrTokenRevoked
// (revoked or unknown), domain.ErrTokenExpired, domain.ErrTokenMalformed
// (fingerprint mismatch).
func (r *GormRepo) RotateRefresh(ctx context.Context, oldJTI, fingerprint string, next *models.RefreshToken, now int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshToken{}).
			Where("jti = ? AND token_hash = ? AND used_at = 0 AND revoked_at = 0 AND expires_at > ?", oldJTI, fingerprint, now).
			Updates(map[string]any{
				"used_at":       now,
				"replaced_by":   next.JTI,
				"revoke_reason": ReasonRotated,
			})
		if res.Error != nil {
			return domain.Infra("repo.rotate_refresh", res.Error)
		}
		if res.RowsAffected == 0 {
			return classifyDead(tx, oldJTI, fingerprint, now)
		}

		if err := tx.Create(next).Error; err != nil {
			return domain.Infra("repo.rotate_refresh", err)
		}
		return nil
	})
}

func classifyDead(tx *gorm.DB, jti, fingerprint string, now int64) error {
	var old models.RefreshToken
	if err := tx.Where("jti = ?", jti).First(&old).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: unknown refresh token", domain.ErrTokenRevoked)
		}
		return domain.Infra("repo.rotate_refresh", err)
	}
	switch {
	case old.TokenHash != fingerprint:
		return fmt.Errorf("%w: fingerprint mismatch", domain.ErrTokenMalformed)
	case old.RevokedAt != 0:
		return fmt.Errorf("%w: %s", domain.ErrTokenRevoked, old.RevokeReason)
	case old.UsedAt != 0:
		return domain.ErrRefreshReuse
	case old.ExpiresAt <= now:
		return domain.ErrTokenExpired
	default:
		return fmt.Errorf("%w: refresh token not live", domain.ErrTokenRevoked)
	}
}

// RevokeChain marks every not yet revoked link of chainID as revoked.
func (r *GormRepo) RevokeChain(ctx context.Context, chainID, reason string, now int64) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("chain_id = ? AND revoked_at = 0", chainID).
		Updates(map[string]any{"revoked_at": now, "revoke_reason": reason})
	if res.Error != nil {
		return 0, domain.Infra("repo.revoke_chain", res.Error)
	}
	return res.RowsAffected, nil
}

// RevokeUserChains revokes every chain of userID with an unexpired link and
// returns the ids of those chains. Chains already closed by rotation reuse
// are included since their access tokens may still be outstanding.
func (r *GormRepo) RevokeUserChains(ctx context.Context, userID, reason string, now int64) ([]string, error) {
	var chains []string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND expires_at > ?", userID, now).
			Distinct().
			Pluck("chain_id", &chains).Error; err != nil {
			return err
		}
		if len(chains) == 0 {
			return nil
		}
		return tx.Model(&models.RefreshToken{}).
			Where("chain_id IN ? AND revoked_at = 0", chains).
			Updates(map[string]any{"revoked_at": now, "revoke_reason": reason}).Error
	})
	if err != nil {
		return nil, domain.Infra("repo.revoke_user_chains", err)
	}
	return chains, nil
}

// PruneRefresh deletes links whose natural expiry is before cutoff.
func (r *GormRepo) PruneRefresh(ctx context.Context, cutoff int64) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, domain.Infra("repo.prune_refresh", res.Error)
	}
	return res.RowsAffected, nil
}
