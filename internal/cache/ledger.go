package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/photoshare/internal/domain"
)

const revokedPrefix = "revoked:"

// Ledger keeps revocation entries as redis keys that expire at the
// revoked token's natural expiry.
type Ledger struct {
	RDB *redis.Client
	Now func() time.Time
}

func NewLedger(rdb *redis.Client) *Ledger {
	return &Ledger{RDB: rdb, Now: time.Now}
}

func revokedKey(id string) string { return revokedPrefix + id }

// revokeScript sets the entry only when its remaining TTL is shorter than
// the requested one. PTTL is -2 for a missing key.
var revokeScript = redis.NewScript(`
local current = redis.call('PTTL', KEYS[1])
if current >= tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// Revoke never shortens an existing entry: a shorter TTL than the one
// already stored is ignored. Check and write run as one script.
func (l *Ledger) Revoke(ctx context.Context, id string, expiry time.Time) error {
	now := l.Now()
	ttl := expiry.Sub(now).Milliseconds()
	if ttl <= 0 {
		return nil
	}
	if err := revokeScript.Run(ctx, l.RDB, []string{revokedKey(id)}, now.Unix(), ttl).Err(); err != nil {
		return domain.Infra("ledger.revoke", err)
	}
	return nil
}

func (l *Ledger) IsRevoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := l.RDB.Exists(ctx, revokedKey(id)).Result()
	if err != nil {
		return false, domain.Infra("ledger.is_revoked", err)
	}
	return n > 0, nil
}

// Prune is a no-op: redis drops each key at its natural expiry.
func (l *Ledger) Prune(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
