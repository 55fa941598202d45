package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// redisReleaseScript deletes a key only if it still holds our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker across processes using Redis SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

// RedisOptions configures a RedisLocker.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // lock lease; defaults to 30s
	Retry    time.Duration // pause between contended attempts; defaults to 25ms
	Prefix   string        // key namespace; defaults to "dao:lock:"
}

// NewRedisLocker creates a locker backed by a new Redis client.
func NewRedisLocker(opts RedisOptions) *RedisLocker {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisLockerWithClient(rdb, opts)
}

// NewRedisLockerWithClient wraps an existing client.
func NewRedisLockerWithClient(client redis.UniversalClient, opts RedisOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	if opts.Prefix == "" {
		opts.Prefix = "dao:lock:"
	}
	return &RedisLocker{client: client, ttl: opts.TTL, retry: opts.Retry, prefix: opts.Prefix}
}

// Acquire takes every key in sorted order, retrying contended keys at a
// rate-limited pace until ctx is done.
func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.New().String()
	limiter := rate.NewLimiter(rate.Every(l.retry), 1)
	held := make([]string, 0, len(keys))

	releaseHeld := func() {
		// Release must still run after the caller's ctx is cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = redisReleaseScript.Run(rctx, l.client, []string{l.prefix + held[i]}, token).Err()
		}
	}

	for _, k := range keys {
		for {
			ok, err := l.client.SetNX(ctx, l.prefix+k, token, l.ttl).Result()
			if err != nil {
				releaseHeld()
				return nil, fmt.Errorf("lock: redis setnx %s: %w", k, err)
			}
			if ok {
				held = append(held, k)
				break
			}
			if err := limiter.Wait(ctx); err != nil {
				releaseHeld()
				return nil, errors.Join(ErrNotAcquired, err)
			}
		}
	}

	done := false
	return func() {
		if done {
			return
		}
		done = true
		releaseHeld()
	}, nil
}

// Close closes the underlying client.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
