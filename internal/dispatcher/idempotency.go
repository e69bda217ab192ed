package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mkamali/notification-dispatch/pkg/logger"
	"github.com/mkamali/notification-dispatch/pkg/redis"
)

var (
	ErrAlreadyDispatched = errors.New("message already dispatched")
	ErrLockHeld          = errors.New("dispatch lock held by another consumer")
	ErrRetriesExhausted  = errors.New("dispatch retries exhausted")
)

type IdempotencyConfig struct {
	LockTTL       time.Duration
	DispatchedTTL time.Duration
	MaxRetries    int

	LockKeyPrefix       string
	RetryKeyPrefix      string
	DispatchedKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:             30 * time.Second,
		DispatchedTTL:       24 * time.Hour,
		MaxRetries:          3,
		LockKeyPrefix:       "dispatch:lock:",
		RetryKeyPrefix:      "dispatch:retry:",
		DispatchedKeyPrefix: "dispatch:done:",
	}
}

// IdempotencyGuard keeps a message from being handed to a provider twice:
// a short SetNX lock serializes concurrent consumers and a long-lived done
// marker absorbs redeliveries of already-dispatched entries.
type IdempotencyGuard struct {
	redis  redis.Adapter
	config IdempotencyConfig
}

func NewIdempotencyGuard(adapter redis.Adapter, config IdempotencyConfig) *IdempotencyGuard {
	return &IdempotencyGuard{redis: adapter, config: config}
}

// DispatchAttempt tracks one locked attempt at sending a message.
type DispatchAttempt struct {
	Key          string
	RetryCount   int
	lockAcquired bool
}

// Acquire takes the dispatch lock for a job key. It fails with
// ErrAlreadyDispatched when the done marker exists, ErrRetriesExhausted when
// the retry counter has hit its ceiling, and ErrLockHeld when another
// consumer holds the lock.
func (g *IdempotencyGuard) Acquire(ctx context.Context, key string) (*DispatchAttempt, error) {
	exists, err := g.redis.Exist(g.config.DispatchedKeyPrefix + key)
	if err != nil {
		// A failed check must not block dispatch; a duplicate send is the
		// lesser harm.
		logger.Warn("failed to check dispatched marker", "key", key, "error", err)
	} else if exists > 0 {
		return nil, ErrAlreadyDispatched
	}

	retries, err := g.retryCount(key)
	if err != nil {
		return nil, err
	}
	if retries >= g.config.MaxRetries {
		return nil, fmt.Errorf("%w: key=%s, retries=%d", ErrRetriesExhausted, key, retries)
	}

	lockValue := []byte(strconv.FormatInt(time.Now().UnixNano(), 10))
	acquired, err := g.redis.SetNX(g.config.LockKeyPrefix+key, lockValue, g.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire dispatch lock: %w", err)
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	return &DispatchAttempt{Key: key, RetryCount: retries, lockAcquired: true}, nil
}

// MarkDispatched sets the long-lived done marker and drops the lock and
// retry counter.
func (g *IdempotencyGuard) MarkDispatched(ctx context.Context, a *DispatchAttempt) error {
	if err := g.redis.Set(g.config.DispatchedKeyPrefix+a.Key, []byte("1"), g.config.DispatchedTTL); err != nil {
		return fmt.Errorf("failed to set dispatched marker: %w", err)
	}

	if err := g.redis.Del(g.config.LockKeyPrefix + a.Key); err != nil {
		logger.Warn("failed to clean up dispatch lock", "key", a.Key, "error", err)
	}
	if err := g.redis.Del(g.config.RetryKeyPrefix + a.Key); err != nil {
		logger.Warn("failed to clean up retry counter", "key", a.Key, "error", err)
	}
	a.lockAcquired = false
	return nil
}

// MarkFailure bumps the retry counter and releases the lock so a later
// redelivery can try again.
func (g *IdempotencyGuard) MarkFailure(ctx context.Context, a *DispatchAttempt, reason error) {
	next := a.RetryCount + 1
	value := []byte(strconv.Itoa(next))
	if err := g.redis.Set(g.config.RetryKeyPrefix+a.Key, value, g.config.DispatchedTTL); err != nil {
		logger.Error("failed to bump retry counter", "key", a.Key, "error", err)
	}

	g.Release(ctx, a)
	logger.Warn("dispatch failed, will retry", "key", a.Key, "retry_count", next, "max_retries", g.config.MaxRetries, "reason", reason)
}

// Release drops the lock without touching the retry counter.
func (g *IdempotencyGuard) Release(ctx context.Context, a *DispatchAttempt) {
	if a == nil || !a.lockAcquired {
		return
	}
	if err := g.redis.Del(g.config.LockKeyPrefix + a.Key); err != nil {
		logger.Warn("failed to release dispatch lock", "key", a.Key, "error", err)
		return
	}
	a.lockAcquired = false
}

func (g *IdempotencyGuard) retryCount(key string) (int, error) {
	raw, err := g.redis.Get(g.config.RetryKeyPrefix + key)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// IsDispatched reports whether the done marker is set for a job key.
func (g *IdempotencyGuard) IsDispatched(ctx context.Context, key string) (bool, error) {
	exists, err := g.redis.Exist(g.config.DispatchedKeyPrefix + key)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
