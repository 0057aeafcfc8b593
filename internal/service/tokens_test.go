package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/photoshare/internal/audit"
	"github.com/Skotchmaster/photoshare/internal/domain"
	"github.com/Skotchmaster/photoshare/internal/events"
	"github.com/Skotchmaster/photoshare/internal/models"
)

type flakyLedger struct {
	Ledger
	revokeErr error
	checkErr  error
	failID    string
}

func (f *flakyLedger) Revoke(ctx context.Context, id string, expiry time.Time) error {
	if f.revokeErr != nil && (f.failID == "" || f.failID == id) {
		return f.revokeErr
	}
	return f.Ledger.Revoke(ctx, id, expiry)
}

func (f *flakyLedger) IsRevoked(ctx context.Context, id string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.Ledger.IsRevoked(ctx, id)
}

func login(t *testing.T, env *testEnv, email, password string) *TokenPair {
	t.Helper()
	pair, _, err := env.Auth.Login(context.Background(), email, password)
	require.NoError(t, err)
	return pair
}

func TestTokenService_RotationScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.Auth.Register(ctx, "a@x.com", "alice", "pw123")
	require.NoError(t, err)

	first := login(t, env, "a@x.com", "pw123")
	assert.True(t, first.AccessExp.Before(first.RefreshExp))

	second, err := env.Tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.ChainID, second.ChainID)

	_, err = env.Tokens.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	assert.ErrorIs(t, err, domain.ErrRefreshReuse)

	claims, err := env.Tokens.ValidateAccess(ctx, second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.UserID, claims.Subject)

	_, err = env.Tokens.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked, "descendants of a reused token are revoked too")

	assert.Equal(t, audit.ActionRefreshReuse, env.Audit.last().Action)
	assert.Len(t, env.Events.ofType(events.TypeRefreshReuse), 1)
}

func TestTokenService_ReuseRevokesDeepDescendants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)

	r1 := login(t, env, "a@x.com", "pw123")
	r2, err := env.Tokens.Refresh(ctx, r1.RefreshToken)
	require.NoError(t, err)
	r3, err := env.Tokens.Refresh(ctx, r2.RefreshToken)
	require.NoError(t, err)

	// Replay of r1 after the ledger entry was pruned away still hits the
	// compare-and-set on the used row.
	require.NoError(t, env.DB.Where("1 = 1").Delete(&models.RevokedToken{}).Error)

	_, err = env.Tokens.Refresh(ctx, r1.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRefreshReuse)

	_, err = env.Tokens.Refresh(ctx, r3.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)

	var live int64
	require.NoError(t, env.DB.Model(&models.RefreshToken{}).Where("chain_id = ? AND revoked_at = 0", r1.ChainID).Count(&live).Error)
	assert.Zero(t, live)
}

func TestTokenService_ReuseLeavesOtherChainsAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)

	phone := login(t, env, "a@x.com", "pw123")
	laptop := login(t, env, "a@x.com", "pw123")

	_, err := env.Tokens.Refresh(ctx, phone.RefreshToken)
	require.NoError(t, err)
	_, err = env.Tokens.Refresh(ctx, phone.RefreshToken)
	require.ErrorIs(t, err, domain.ErrRefreshReuse)

	_, err = env.Tokens.Refresh(ctx, laptop.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_ConcurrentRefreshSingleWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	const workers = 6
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.Tokens.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	}
	assert.Equal(t, 1, wins)
}

func TestTokenService_RefreshFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	_, err := env.Tokens.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrTokenMalformed)

	_, err = env.Tokens.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenMalformed, "access token is not a refresh token")

	require.NoError(t, env.Repo.SetBanned(ctx, u.ID, true))
	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrAccountBanned)
	require.NoError(t, env.Repo.SetBanned(ctx, u.ID, false))

	env.Clock.Advance(8 * 24 * time.Hour)
	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenService_RefreshCarriesCurrentRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	require.NoError(t, env.Repo.SetRoleGuarded(ctx, u.ID, domain.RoleModerator))
	next, err := env.Tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	id, err := env.Tokens.Authenticate(ctx, next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, id.Role)
}

func TestTokenService_LedgerWriteFailureKeepsNewPair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	env.Tokens.Ledger = &flakyLedger{Ledger: env.Ledger, revokeErr: domain.Infra("ledger.revoke", errors.New("down"))}
	next, err := env.Tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, next.RefreshToken)

	env.Tokens.Ledger = env.Ledger
	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrRefreshReuse, "the committed rotation still marks the old link used")
}

func TestTokenService_LedgerUnavailableIsInfrastructure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	env.Tokens.Ledger = &flakyLedger{Ledger: env.Ledger, checkErr: domain.Infra("ledger.is_revoked", errors.New("down"))}

	_, err := env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.NotErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestTokenService_ValidateAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	first, err := env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	again, err := env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, first, again, "validation is idempotent")

	env.Clock.Advance(16 * time.Minute)
	_, err = env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
}

func TestTokenService_RevokedAccessRejectedBeforeExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	claims, err := env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.NoError(t, env.Ledger.Revoke(ctx, claims.ID, claims.ExpiresAt.Time))

	_, err = env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
}

func TestTokenService_Logout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")
	other := login(t, env, "a@x.com", "pw123")

	require.NoError(t, env.Tokens.Revoke(ctx, pair.AccessToken, pair.RefreshToken))

	_, err := env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	assert.NotErrorIs(t, err, domain.ErrRefreshReuse)

	_, err = env.Tokens.ValidateAccess(ctx, other.AccessToken)
	assert.NoError(t, err, "other sessions survive a single logout")

	require.NoError(t, env.Tokens.Revoke(ctx, pair.AccessToken, pair.RefreshToken), "logout is idempotent")
	require.NoError(t, env.Tokens.Revoke(ctx, "garbage", ""))
}

func TestTokenService_LogoutEndsSessionBeforeTokenIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")

	claims, err := env.Tokens.Signer.ParseRefresh(pair.RefreshToken)
	require.NoError(t, err)
	env.Tokens.Ledger = &flakyLedger{Ledger: env.Ledger, revokeErr: errors.New("ledger down"), failID: claims.ID}

	require.Error(t, env.Tokens.Revoke(ctx, pair.AccessToken, pair.RefreshToken))

	env.Tokens.Ledger = env.Ledger
	_, err = env.Tokens.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
}

func TestTokenService_RevokeAllForUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	env.createUser(t, "b@x.com", "pw123", domain.RoleUser)

	one := login(t, env, "a@x.com", "pw123")
	two := login(t, env, "a@x.com", "pw123")
	rotated, err := env.Tokens.Refresh(ctx, two.RefreshToken)
	require.NoError(t, err)
	bystander := login(t, env, "b@x.com", "pw123")

	n, err := env.Tokens.RevokeAllForUser(ctx, u.ID, ReasonLogoutAll)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, raw := range []string{one.AccessToken, two.AccessToken, rotated.AccessToken} {
		_, err := env.Tokens.ValidateAccess(ctx, raw)
		assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	}
	_, err = env.Tokens.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = env.Tokens.ValidateAccess(ctx, bystander.AccessToken)
	assert.NoError(t, err)

	assert.Len(t, env.Events.ofType(events.TypeSessionsRevoked), 1)

	rec := env.Audit.last()
	assert.Equal(t, audit.ActionRevokeAll, rec.Action)
	assert.Equal(t, u.ID, rec.TargetID)
	assert.Equal(t, "2", rec.Detail["count"])
	assert.Equal(t, ReasonLogoutAll, rec.Detail["reason"])
}

func TestTokenService_Prune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.createUser(t, "a@x.com", "pw123", domain.RoleUser)
	pair := login(t, env, "a@x.com", "pw123")
	require.NoError(t, env.Tokens.Revoke(ctx, pair.AccessToken, pair.RefreshToken))

	res, err := env.Tokens.Prune(ctx, env.Clock.Now())
	require.NoError(t, err)
	assert.Zero(t, res.LedgerEntries, "nothing is pruned before its natural expiry")
	assert.Zero(t, res.RefreshLinks)

	later := env.Clock.Now().Add(8 * 24 * time.Hour)
	res, err = env.Tokens.Prune(ctx, later)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.LedgerEntries)
	assert.EqualValues(t, 1, res.RefreshLinks)
}
