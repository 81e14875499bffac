package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SyncLocker serializes catalog writes per provider kind across concurrent
// reconcile units and across gateway replicas.
type SyncLocker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSyncLocker(rdb *redis.Client, ttl time.Duration) *SyncLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &SyncLocker{redis: rdb, ttl: ttl}
}

// Acquire blocks until the named lock is held or ctx is done. The returned
// release func is safe to call once.
func (l *SyncLocker) Acquire(ctx context.Context, name string) (func(), error) {
	key := fmt.Sprintf("modelgate:synclock:%s", name)
	for {
		ok, err := l.redis.SetNX(ctx, key, "1", l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		if ok {
			return func() {
				_ = l.redis.Del(context.Background(), key).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
