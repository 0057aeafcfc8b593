package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/photoshare/internal/domain"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLedger(rdb), s
}

func TestLedger_RevokeUntilExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, s := newTestLedger(t)

	require.NoError(t, l.Revoke(ctx, "jti-1", time.Now().Add(10*time.Minute)))

	revoked, err := l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl := s.TTL(revokedKey("jti-1"))
	assert.InDelta(t, (10 * time.Minute).Seconds(), ttl.Seconds(), 2)

	s.FastForward(11 * time.Minute)
	revoked, err = l.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestLedger_RevokeNeverShortens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, s := newTestLedger(t)

	require.NoError(t, l.Revoke(ctx, "chain", time.Now().Add(time.Hour)))
	require.NoError(t, l.Revoke(ctx, "chain", time.Now().Add(time.Minute)))
	assert.InDelta(t, time.Hour.Seconds(), s.TTL(revokedKey("chain")).Seconds(), 2)

	require.NoError(t, l.Revoke(ctx, "chain", time.Now().Add(2*time.Hour)))
	assert.InDelta(t, (2 * time.Hour).Seconds(), s.TTL(revokedKey("chain")).Seconds(), 2)
}

func TestLedger_ConcurrentRevokeKeepsLongest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, s := newTestLedger(t)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(minutes int) {
			defer wg.Done()
			assert.NoError(t, l.Revoke(ctx, "sid", time.Now().Add(time.Duration(minutes)*time.Minute)))
		}(i)
	}
	wg.Wait()

	assert.InDelta(t, (20 * time.Minute).Seconds(), s.TTL(revokedKey("sid")).Seconds(), 2)
}

func TestLedger_RevokeAlreadyExpiredIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, s := newTestLedger(t)

	require.NoError(t, l.Revoke(ctx, "old", time.Now().Add(-time.Second)))
	assert.False(t, s.Exists(revokedKey("old")))

	n, err := l.Prune(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLedger_UnavailableIsInfrastructure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, s := newTestLedger(t)
	s.Close()

	_, err := l.IsRevoked(ctx, "jti")
	assert.ErrorIs(t, err, domain.ErrInfrastructure)

	err = l.Revoke(ctx, "jti", time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestNewRedisClient(t *testing.T) {
	t.Parallel()
	s := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+s.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	assert.NoError(t, Ping(context.Background(), client))

	s.Close()
	assert.ErrorIs(t, Ping(context.Background(), client), domain.ErrInfrastructure)

	_, err = NewRedisClient(context.Background(), "not a url")
	assert.Error(t, err)
}
