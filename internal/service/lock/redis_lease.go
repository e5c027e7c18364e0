package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/interview-prep/internal/domain"
)

// Compare-and-delete: only the holder's token may release the lease.
const luaRelease = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Compare-and-extend, used by the renewal loop.
const luaRenew = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// RedisLease is a domain.Locker backed by SET NX PX. Held leases are renewed
// every ttl/3 until released; a crashed holder frees the key after ttl.
type RedisLease struct {
	rdb     *redis.Client
	ttl     time.Duration
	prefix  string
	release *redis.Script
	renew   *redis.Script
}

// NewRedisLease creates a lease locker. Keys are stored as prefix+key.
func NewRedisLease(rdb *redis.Client, ttl time.Duration, prefix string) *RedisLease {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &RedisLease{
		rdb:     rdb,
		ttl:     ttl,
		prefix:  prefix,
		release: redis.NewScript(luaRelease),
		renew:   redis.NewScript(luaRenew),
	}
}

// Acquire implements domain.Locker.
func (l *RedisLease) Acquire(ctx context.Context, key string) (func(), error) {
	full := l.prefix + key
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("op=lock.RedisLease.Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is held", domain.ErrConflict, key)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(full, token, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := l.release.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil {
				slog.Warn("lease release failed", slog.String("key", full), slog.Any("error", err))
			}
		})
	}, nil
}

func (l *RedisLease) keepAlive(key, token string, stop <-chan struct{}) {
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			n, err := l.renew.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("lease renew failed", slog.String("key", key), slog.Any("error", err))
				continue
			}
			if n == 0 {
				slog.Warn("lease lost before release", slog.String("key", key))
				return
			}
		}
	}
}

// Ping checks the Redis connection, used by readiness.
func (l *RedisLease) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
