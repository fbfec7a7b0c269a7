// Package lock serialises work per key, either in-process or across replicas via Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

const defaultTTL = 60 * time.Second

var errNoCallback = errors.New("lock: callback not provided")

var (
	renewLease = redis.NewScript(`if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("PEXPIRE", KEYS[1], ARGV[2])`)
	dropLease = redis.NewScript(`if redis.call("GET", KEYS[1]) ~= ARGV[1] then return 0 end
return redis.call("DEL", KEYS[1])`)
)

// RedisLocker holds a lease per key in Redis. The lease is renewed every
// third of its ttl while the callback runs, and lapses on its own if the
// holder dies.
type RedisLocker struct {
	client *redis.Client
	retry  time.Duration
	logger zerolog.Logger
}

func NewRedisLocker(client *redis.Client, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: client, retry: 50 * time.Millisecond, logger: logger}
}

// WithRetry sets how often a waiting caller polls for the lease.
func (l *RedisLocker) WithRetry(d time.Duration) *RedisLocker {
	if d > 0 {
		l.retry = d
	}
	return l
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l == nil || l.client == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errNoCallback
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(key, token, ttl, stop, renewed)
	defer func() {
		close(stop)
		<-renewed
		l.release(context.WithoutCancel(ctx), key, token)
	}()

	return fn(ctx)
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// renew extends the lease until stop closes or the lease turns out to be
// held by someone else.
func (l *RedisLocker) renew(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewLease.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int64()
		cancel()
		if err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("renew lock lease")
			continue
		}
		if n == 0 {
			l.logger.Warn().Str("key", key).Msg("lock lease lost before release")
			return
		}
	}
}

func (l *RedisLocker) release(ctx context.Context, key, token string) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := dropLease.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("release lock lease")
	}
}

// LocalLocker is the single-process fallback. ttl is ignored.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errNoCallback
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		s.waiters--
		if s.waiters == 0 {
			delete(l.slots, key)
		}
		l.mu.Unlock()
	}()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}
