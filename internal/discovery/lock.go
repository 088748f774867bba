package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKey = "discovery:run-lock"

// RunLock is the advisory, single-run lock spec.md §4.5 requires: at most
// one discovery run at a time. It is a Redis SETNX lock with a TTL, the
// same primitive the donor's cache package builds its keyed operations on
// (discovery_service/internal/cache/redis.go), rather than a filesystem
// lock file — the pipeline already depends on Redis for the job queue, so
// reusing it here avoids a second coordination mechanism.
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunLock(redisAddr string, ttl time.Duration) *RunLock {
	return &RunLock{
		client: redis.NewClient(&redis.Options{Addr: redisAddr}),
		ttl:    ttl,
	}
}

func (l *RunLock) Close() error { return l.client.Close() }

// TryAcquire attempts to take the lock, returning false without error if
// another discovery run already holds it.
func (l *RunLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey, "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("discovery: acquiring run lock: %w", err)
	}
	return ok, nil
}

// Release drops the lock early, once a run completes, instead of waiting
// out the TTL.
func (l *RunLock) Release(ctx context.Context) error {
	if err := l.client.Del(ctx, lockKey).Err(); err != nil {
		return fmt.Errorf("discovery: releasing run lock: %w", err)
	}
	return nil
}
