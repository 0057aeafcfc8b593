package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/hash"
	"github.com/Skotchmaster/photoshare/internal/models"
	"github.com/Skotchmaster/photoshare/internal/repo"
	"github.com/Skotchmaster/photoshare/internal/tokens"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(typ string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingAudit struct {
	mu      sync.Mutex
	records []audit.Record
}

func (a *recordingAudit) Record(_ context.Context, r audit.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
	return nil
}

func (a *recordingAudit) last() audit.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.records) == 0 {
		return audit.Record{}
	}
	return a.records[len(a.records)-1]
}

type testEnv struct {
	DB     *gorm.DB
	Repo   *repo.GormRepo
	Ledger *repo.Ledger
	Clock  *testClock
	Events *recordingPublisher
	Audit  *recordingAudit

	Credentials *CredentialStore
	Tokens      *TokenService
	Auth        *AuthService
	Admin       *AdminService
}

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

	require.NoError(t, repo.Migrate(context.Background(), db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := InitTestDB(t)
	clk := &testClock{t: time.Now().UTC().Truncate(time.Second)}

	signer, err := tokens.NewSigner(tokens.Config{
		AccessSecret:  []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		EmailTTL:      12 * time.Hour,
		Now:           clk.Now,
	})
	require.NoError(t, err)

	env := &testEnv{
		DB:     db,
		Repo:   repo.New(db),
		Ledger: &repo.Ledger{DB: db, Now: clk.Now},
		Clock:  clk,
		Events: &recordingPublisher{},
		Audit:  &recordingAudit{},
	}
	env.Credentials = &CredentialStore{Users: env.Repo, Hasher: hash.New(bcrypt.MinCost)}
	env.Tokens = &TokenService{
		Signer: signer,
		Chains: env.Repo,
		Users:  env.Repo,
		Ledger: env.Ledger,
		Audit:  env.Audit,
		Events: env.Events,
	}
	env.Auth = &AuthService{
		Credentials:   env.Credentials,
		Tokens:        env.Tokens,
		Events:        env.Events,
		PublicBaseURL: "http://photos.test",
	}
	env.Admin = &AdminService{
		Users:  env.Repo,
		Tokens: env.Tokens,
		Audit:  env.Audit,
		Events: env.Events,
	}
	return env
}

func (env *testEnv) createUser(t *testing.T, email, password string, role domain.Role) *models.User {
	t.Helper()
	username := "u_" + uuid.NewString()[:8]
	u, err := env.Credentials.CreateUser(context.Background(), email, username, password, role)
	require.NoError(t, err)
	return u
}

func identityOf(u *models.User) domain.Identity {
	return domain.Identity{UserID: u.ID, Role: domain.Role(u.Role)}
}
