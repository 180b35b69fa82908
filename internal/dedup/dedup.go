// Package dedup guards against duplicate deliveries of the same
// end-of-call report.
//
// A lease on a call id is taken before the pipeline runs. It is released
// when the run fails, so the sender's retry can proceed, and kept until its
// TTL expires when the run succeeds, so redeliveries are rejected.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/fyrsmithlabs/voicesop/internal/config"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces lease keys.
const KeyPrefix = "voicesop:call:"

// ErrDuplicate is returned when a lease for the call is already held.
var ErrDuplicate = errors.New("call is already being processed")

// Lease is a held claim on a call id.
type Lease interface {
	Release(ctx context.Context) error
}

// Guard hands out leases on call ids.
type Guard interface {
	Acquire(ctx context.Context, callID string) (Lease, error)
}

type obtainFunc func(ctx context.Context, key string, ttl time.Duration) (Lease, error)

// RedisGuard takes leases with redislock.
type RedisGuard struct {
	obtain obtainFunc
	ttl    time.Duration
}

// NewRedisGuard creates a guard on client. Leases expire after ttl.
func NewRedisGuard(client redislock.RedisClient, ttl time.Duration) *RedisGuard {
	locker := redislock.New(client)
	return &RedisGuard{
		ttl: ttl,
		obtain: func(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
			lock, err := locker.Obtain(ctx, key, ttl, nil)
			if err != nil {
				return nil, err
			}
			return lock, nil
		},
	}
}

// Acquire claims callID. ErrDuplicate means another delivery holds it.
func (g *RedisGuard) Acquire(ctx context.Context, callID string) (Lease, error) {
	if callID == "" {
		return nopLease{}, nil
	}
	lease, err := g.obtain(ctx, KeyPrefix+callID, g.ttl)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("obtaining lease for call %s: %w", callID, err)
	}
	return lease, nil
}

// Nop never rejects a call.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (Lease, error) { return nopLease{}, nil }

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }

// Open returns a Redis guard for cfg, or Nop when no URL is configured.
// The returned close function releases the Redis client.
func Open(ctx context.Context, cfg config.RedisConfig) (Guard, func() error, error) {
	if cfg.URL == "" {
		return Nop{}, func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisGuard(rdb, cfg.DedupTTL.Duration()), rdb.Close, nil
}
