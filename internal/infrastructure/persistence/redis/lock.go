package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecoquest/ecoquest-progression/internal/domain/shared"
)

// TTLDistributedLock is the default lock lease.
const TTLDistributedLock = 10 * time.Second

// LockerOptions configures Locker.
type LockerOptions struct {
	// TTL is the lease after which an abandoned lock expires.
	TTL time.Duration

	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration

	// MaxWait bounds how long Lock waits for a busy key.
	MaxWait time.Duration

	// Logger receives release failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Locker is a cross-instance mutex keyed by string. It uses SET NX PX with
// a random token; release deletes the key only while it still holds that
// token, so an expired lease never releases another holder's lock.
type Locker struct {
	kv       KV
	opts     LockerOptions
	logger   *slog.Logger
	newToken func() string
}

// NewLocker creates a Locker over kv.
func NewLocker(kv KV, opts LockerOptions) *Locker {
	if opts.TTL <= 0 {
		opts.TTL = TTLDistributedLock
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{
		kv:       kv,
		opts:     opts,
		logger:   logger.With("component", "redis_lock"),
		newToken: uuid.NewString,
	}
}

// Lock acquires the lock for key. A key that stays busy for MaxWait yields
// an error wrapping shared.ErrConcurrentModification. Cancellation of ctx
// is returned as the context error.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKey(key)
	token := l.newToken()

	waitCtx, cancel := context.WithTimeout(ctx, l.opts.MaxWait)
	defer cancel()

	ticker := time.NewTicker(l.opts.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.kv.SetNX(waitCtx, redisKey, token, l.opts.TTL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		select {
		case <-waitCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: lock %s is busy", shared.ErrConcurrentModification, key)
		case <-ticker.C:
		}
	}
}

func (l *Locker) releaser(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		deleted, err := l.kv.CompareAndDelete(ctx, key, token)
		switch {
		case err != nil:
			l.logger.Error("failed to release lock, it stays held until the lease expires",
				"key", key,
				"lease", l.opts.TTL,
				"error", err,
			)
		case !deleted:
			l.logger.Warn("lock lease expired before release", "key", key, "lease", l.opts.TTL)
		}
	}
}

