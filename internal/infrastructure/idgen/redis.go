package idgen

import (
	"context"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// Seeder returns the value a fresh counter should start from.
type Seeder func(ctx context.Context) (int64, error)

// RedisAllocator makes a Redis counter the id authority, so several
// processes can insert students without colliding.
type RedisAllocator struct {
	client redis.Cmdable
	key    string
	seed   Seeder

	mu     sync.Mutex
	seeded bool
}

// NewRedisAllocator creates an allocator over key. seed is consulted once,
// and only takes effect if the key does not exist yet.
func NewRedisAllocator(client redis.Cmdable, key string, seed Seeder) *RedisAllocator {
	return &RedisAllocator{client: client, key: key, seed: seed}
}

// NextID increments the shared counter.
func (a *RedisAllocator) NextID(ctx context.Context) (string, error) {
	if err := a.ensureSeeded(ctx); err != nil {
		return "", err
	}
	n, err := a.client.Incr(ctx, a.key).Result()
	if err != nil {
		return "", shared.WrapError("idgen", "NextID", shared.ErrPartition, "redis incr "+a.key, err)
	}
	return strconv.FormatInt(n, 10), nil
}

func (a *RedisAllocator) ensureSeeded(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seeded {
		return nil
	}
	var start int64
	if a.seed != nil {
		v, err := a.seed(ctx)
		if err != nil {
			return err
		}
		start = v
	}
	if err := a.client.SetNX(ctx, a.key, start, 0).Err(); err != nil {
		return shared.WrapError("idgen", "Seed", shared.ErrPartition, "redis setnx "+a.key, err)
	}
	a.seeded = true
	return nil
}
