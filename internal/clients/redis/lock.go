package redis

import (
	"context"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"time"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock taken over by another holder is never released by us.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireLock takes a best-effort distributed lock. Returns a release func
// and whether the lock was acquired. On a nil client the lock is always
// "acquired" with a no-op release; the database compare-and-swap remains the
// hard serialization guarantee.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error) {
	if c == nil || c.rdb == nil {
		return func() {}, true, nil
	}
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}
	release = func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, relErr := releaseScript.Run(relCtx, c.rdb, []string{key}, token).Result(); relErr != nil {
			c.log.Warn("Failed to release lock", "key", key, "error", relErr)
		}
	}
	return release, true, nil
}
