// Package lease implements the per-account sync lease on Redis.
package lease

import (
	"context"
	"fmt"
	"time"

	"mailsync_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis Sync Lease
// =============================================================================

// RedisLease implements out.SyncLease with SET NX PX. The TTL caps how
// long a crashed worker can block an account; Release frees it early
// only when this holder still owns it.
type RedisLease struct {
	client  *redis.Client
	ownerID string
	ttl     time.Duration
}

var _ out.SyncLease = (*RedisLease)(nil)

func NewRedisLease(client *redis.Client, ownerID string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client:  client,
		ownerID: ownerID,
		ttl:     ttl,
	}
}

func leaseKey(accountID int64) string {
	return fmt.Sprintf("sync:lease:%d", accountID)
}

func (l *RedisLease) Acquire(ctx context.Context, accountID int64) (bool, error) {
	ok, err := l.client.SetNX(ctx, leaseKey(accountID), l.ownerID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for account %d: %w", accountID, err)
	}
	return ok, nil
}

// releaseScript deletes the key only if the value still matches the
// owner, so an expired lease re-acquired by someone else survives.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *RedisLease) Release(ctx context.Context, accountID int64) error {
	if err := releaseScript.Run(ctx, l.client, []string{leaseKey(accountID)}, l.ownerID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease for account %d: %w", accountID, err)
	}
	return nil
}
