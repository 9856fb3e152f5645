package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/training-planner/internal/domain/shared"
)

// ErrLockHeld is returned when another process holds the lock.
// Its kind is a persistence conflict, so callers retry.
var ErrLockHeld = shared.NewDomainError("redis", "Acquire", shared.ErrPersistenceConflict, "lock is held by another process")

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-instance advisory lock built on SET NX PX.
type Locker struct {
	client *Client
}

// NewLocker creates a new Locker.
func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

// Acquire takes the lock on key for ttl. The returned release func is safe
// to call after the lock expired.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	lockKey := l.client.LockKey(key)
	token := uuid.NewString()

	ok, err := l.client.rdb.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, classify("Acquire", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client.rdb, []string{lockKey}, token).Err(); err != nil {
			return classify("Release", err)
		}
		return nil
	}, nil
}
