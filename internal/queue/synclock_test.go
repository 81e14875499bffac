package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSyncLockerMutualExclusion(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	locker := NewSyncLocker(rdb, time.Minute)

	release, err := locker.Acquire(context.Background(), "catalog:openai")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "catalog:openai"); err == nil {
		t.Fatalf("expected second acquire to time out while lock is held")
	}

	release()

	release2, err := locker.Acquire(context.Background(), "catalog:openai")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestSyncLockerDifferentNames(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	locker := NewSyncLocker(rdb, time.Minute)

	release1, err := locker.Acquire(context.Background(), "catalog:openai")
	if err != nil {
		t.Fatalf("acquire openai: %v", err)
	}
	defer release1()

	release2, err := locker.Acquire(context.Background(), "catalog:anthropic")
	if err != nil {
		t.Fatalf("acquire anthropic: %v", err)
	}
	release2()
}
