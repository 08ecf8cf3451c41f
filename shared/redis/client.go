package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock is held by another owner")

// releaseScript deletes the key only if it still carries our token
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Connect initializes a Redis client from a redis:// URL or host:port input
func Connect(_ context.Context, redisURL string) (*goredis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return goredis.NewClient(opt), nil
	}
	if redisURL == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	return goredis.NewClient(&goredis.Options{Addr: redisURL}), nil
}

// Locker hands out best-effort distributed locks backed by SET NX PX
type Locker struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

// Lock is a held lock; Release it when the guarded work is done
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// NewLocker creates a Locker over an existing client
func NewLocker(client goredis.UniversalClient, logger *slog.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

// Acquire takes key for ttl. It returns ErrLockHeld if someone else has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	l.logger.Debug("Lock acquired",
		slog.String("key", key),
		slog.Duration("ttl", ttl),
	)

	return &Lock{locker: l, key: key, token: token}, nil
}

// Release drops the lock if it is still ours. An expired lock is not an error.
func (lk *Lock) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lk.key, err)
	}

	if deleted == 0 {
		lk.locker.logger.Warn("Lock expired before release",
			slog.String("key", lk.key),
		)
	}
	return nil
}
