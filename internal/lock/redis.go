package lock

import (
	"context"
	"fmt"
	"time"

	"studiobook/internal/apperr"
	"studiobook/internal/config"
	"studiobook/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from the redis section of the config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker coordinates schedule keys across processes with SET NX PX leases.
type RedisLocker struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	retry   backoff
}

func NewRedisLocker(client *redis.Client, prefix string, ttl, timeout time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "studiobook:lock:"
	}
	if ttl <= 0 {
		ttl = models.DefaultLockTTL
	}
	if timeout <= 0 {
		timeout = models.DefaultLockTimeout
	}
	return &RedisLocker{
		client:  client,
		prefix:  prefix,
		ttl:     ttl,
		timeout: timeout,
		retry:   defaultBackoff,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	if l.client == nil {
		return nil, fmt.Errorf("%w: redis client is nil", ErrBackendUnavailable)
	}
	keys = normalizeKeys(keys)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]string, 0, len(keys))
	release := func() {
		relCtx, relCancel := context.WithTimeout(context.Background(), time.Second)
		defer relCancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(relCtx, l.client, []string{l.prefix + held[i]}, token).Err()
		}
	}

	for _, key := range keys {
		if err := l.acquireOne(ctx, waitCtx, key, token); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		release()
	}, nil
}

func (l *RedisLocker) acquireOne(ctx, waitCtx context.Context, key, token string) error {
	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(waitCtx, l.prefix+key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if waitCtx.Err() != nil {
				return apperr.Wrap(apperr.KindBusy, waitCtx.Err(), "schedule is busy, retry later")
			}
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(l.retry.delay(attempt))
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			timer.Stop()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return apperr.Wrap(apperr.KindBusy, waitCtx.Err(), "schedule is busy, retry later")
		}
	}
}
