// Package lock provides a Redis-backed leader lock so that only one
// process runs the global reconciliation tick at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// acquireScript takes the lock when it is free and renews it when the
// caller already owns it.
var acquireScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if current == ARGV[1] then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		return 1
	end
	if current then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
	return 1
`)

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLock is a single-key lease identified by a random owner token.
type RedisLock struct {
	client redis.Scripter
	key    string
	ttl    time.Duration
	owner  string
}

// New returns a lock on key with the given lease duration.
func New(client redis.Scripter, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLock{client: client, key: key, ttl: ttl, owner: uuid.NewString()}
}

// TryAcquire reports whether this process holds the lease after the call.
func (l *RedisLock) TryAcquire(ctx context.Context) (bool, error) {
	n, err := acquireScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release gives up the lease if this process still holds it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
