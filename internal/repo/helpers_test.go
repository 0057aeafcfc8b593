package repo

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/photoshare/internal/models"
)

func InitTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func newUser(email, username, role string) *models.User {
	return &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: "hash",
		Role:         role,
	}
}

func newLink(userID, chainID, parent string, exp time.Time) *models.RefreshToken {
	jti := uuid.NewString()
	return &models.RefreshToken{
		JTI:       jti,
		UserID:    userID,
		ChainID:   chainID,
		ParentJTI: parent,
		TokenHash: "hash-" + jti,
		IssuedAt:  exp.Add(-time.Hour).Unix(),
		ExpiresAt: exp.Unix(),
	}
}
