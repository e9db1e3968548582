package idgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// counterStub implements the two commands the allocator issues.
type counterStub struct {
	redis.Cmdable

	values  map[string]int64
	setnx   int
	failErr error
}

func newCounterStub() *counterStub {
	return &counterStub{values: make(map[string]int64)}
}

func (s *counterStub) SetNX(ctx context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	s.setnx++
	cmd := redis.NewBoolCmd(ctx)
	if s.failErr != nil {
		cmd.SetErr(s.failErr)
		return cmd
	}
	if _, ok := s.values[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.values[key] = value.(int64)
	cmd.SetVal(true)
	return cmd
}

func (s *counterStub) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if s.failErr != nil {
		cmd.SetErr(s.failErr)
		return cmd
	}
	s.values[key]++
	cmd.SetVal(s.values[key])
	return cmd
}

func TestRedisAllocator_SeedsOnce(t *testing.T) {
	stub := newCounterStub()
	seeds := 0
	a := NewRedisAllocator(stub, "k", func(context.Context) (int64, error) {
		seeds++
		return 41, nil
	})

	first, err := a.NextID(context.Background())
	require.NoError(t, err)
	second, err := a.NextID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "42", first)
	assert.Equal(t, "43", second)
	assert.Equal(t, 1, seeds)
	assert.Equal(t, 1, stub.setnx)
}

func TestRedisAllocator_ExistingCounterWins(t *testing.T) {
	stub := newCounterStub()
	stub.values["k"] = 100
	a := NewRedisAllocator(stub, "k", func(context.Context) (int64, error) { return 5, nil })

	id, err := a.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "101", id)
}

func TestRedisAllocator_Errors(t *testing.T) {
	stub := newCounterStub()
	stub.failErr = errors.New("connection refused")

	_, err := NewRedisAllocator(stub, "k", nil).NextID(context.Background())
	assert.True(t, shared.IsPartition(err))

	seedErr := errors.New("scan failed")
	_, err = NewRedisAllocator(newCounterStub(), "k", func(context.Context) (int64, error) { return 0, seedErr }).
		NextID(context.Background())
	assert.ErrorIs(t, err, seedErr)
}
