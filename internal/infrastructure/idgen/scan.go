// Package idgen allocates record identifiers. Student ids are sequential
// numbers handed out by a single authority: a mutex-guarded in-process
// counter (ScanAllocator) or a Redis counter shared between processes
// (RedisAllocator). Both seed themselves from the largest numeric id already
// stored in any partition.
package idgen

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

// MaxNumericID returns the largest numeric student id across every partition.
// Non-numeric ids are ignored; an empty system yields 0.
func MaxNumericID(ctx context.Context, dir *partition.Directory) (int64, error) {
	var highest int64
	for _, p := range dir.Map().Partitions() {
		col, ok, err := dir.ExistingCollection(ctx, p.ID, partition.CollectionStudents)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		rows, err := col.Get(ctx)
		if err != nil {
			return 0, shared.PartitionFault(string(p.ID), "Get", err)
		}
		for _, r := range rows {
			n, err := strconv.ParseInt(r.ID, 10, 64)
			if err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest, nil
}

// ScanAllocator seeds once from a scan of every partition, then increments
// in memory under a mutex.
type ScanAllocator struct {
	dir    *partition.Directory
	mu     sync.Mutex
	seeded bool
	last   int64
}

// NewScanAllocator creates an allocator over dir.
func NewScanAllocator(dir *partition.Directory) *ScanAllocator {
	return &ScanAllocator{dir: dir}
}

// NextID returns the next sequential id.
func (a *ScanAllocator) NextID(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.seeded {
		highest, err := MaxNumericID(ctx, a.dir)
		if err != nil {
			return "", err
		}
		a.last = highest
		a.seeded = true
	}
	a.last++
	return strconv.FormatInt(a.last, 10), nil
}

// UUIDGenerator produces random identifiers for records that are never
// addressed by number (reviews).
type UUIDGenerator struct{}

// GenerateID returns a new random UUID.
func (UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}
