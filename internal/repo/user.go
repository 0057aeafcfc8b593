package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/models"
)

// CreateUser inserts u. Duplicate email or username yields domain.ErrConflict,
// whether caught by the pre-check or by the unique index under a race.
func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	db := r.DB.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).
		Where("email = ? OR username = ?", u.Email, u.Username).
		Count(&count).Error; err != nil {
		return domain.Infra("repo.create_user", err)
	}
	if count > 0 {
		return domain.ErrConflict
	}

	if err := db.Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return domain.Infra("repo.create_user", err)
	}
	return nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFoundOr("repo.get_user", err)
	}
	return &user, nil
}

func (r *GormRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFoundOr("repo.get_user_by_email", err)
	}
	return &user, nil
}

func (r *GormRepo) ListUsers(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	db := r.DB.WithContext(ctx)

	var total int64
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, domain.Infra("repo.list_users", err)
	}

	var users []models.User
	if err := db.Order("created_at ASC, id ASC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, domain.Infra("repo.list_users", err)
	}
	return users, total, nil
}

func (r *GormRepo) SetBanned(ctx context.Context, id string, banned bool) error {
	return r.updateUser(ctx, "repo.set_banned", id, "banned", banned)
}

// SetRoleGuarded changes the role of id unless doing so would leave no
// admin. Demoting an admin locks every admin row first, so two concurrent
// demotions cannot both see the other admin.
func (r *GormRepo) SetRoleGuarded(ctx context.Context, id string, role domain.Role) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", id).First(&user).Error; err != nil {
			return notFoundOr("repo.set_role", err)
		}
		if domain.Role(user.Role) == domain.RoleAdmin && role != domain.RoleAdmin {
			var admins []models.User
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("role = ?", string(domain.RoleAdmin)).
				Find(&admins).Error; err != nil {
				return domain.Infra("repo.set_role", err)
			}
			if len(admins) <= 1 {
				return domain.ErrConflict
			}
		}
		if err := tx.Model(&models.User{}).Where("id = ?", id).Update("role", string(role)).Error; err != nil {
			return domain.Infra("repo.set_role", err)
		}
		return nil
	})
}

func (r *GormRepo) SetEmailVerified(ctx context.Context, id string) error {
	return r.updateUser(ctx, "repo.set_email_verified", id, "email_verified", true)
}

func (r *GormRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return r.updateUser(ctx, "repo.update_password", id, "password_hash", hash)
}

func (r *GormRepo) updateUser(ctx context.Context, op, id, column string, value any) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return domain.Infra(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
