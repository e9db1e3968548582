package idgen

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/testutil"
)

func TestScanAllocator_SeedsFromMax(t *testing.T) {
	cluster := testutil.NewCluster(fragment.DefaultMap())
	cluster.Seed("DBVS1/db11", partition.CollectionStudents, partition.Record{ID: "7"})
	cluster.Seed("DBVS2/db22", partition.CollectionStudents,
		partition.Record{ID: "41"},
		partition.Record{ID: "not-a-number"},
	)

	a := NewScanAllocator(cluster.Dir)
	id, err := a.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	id, err = a.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "43", id)
}

func TestScanAllocator_EmptySystem(t *testing.T) {
	a := NewScanAllocator(testutil.NewCluster(fragment.DefaultMap()).Dir)
	id, err := a.NextID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", id)
}

func TestScanAllocator_Concurrent(t *testing.T) {
	a := NewScanAllocator(testutil.NewCluster(fragment.DefaultMap()).Dir)

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := a.NextID(context.Background())
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestScanAllocator_ScanFailure(t *testing.T) {
	cluster := testutil.NewCluster(fragment.DefaultMap())
	cluster.Seed("DBVS1/db11", partition.CollectionStudents, partition.Record{ID: "1"})
	cluster.Gateways["DBVS1/db11"].Fail(testutil.Fault{Collection: partition.CollectionStudents, Op: testutil.OpGet})

	_, err := NewScanAllocator(cluster.Dir).NextID(context.Background())
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestUUIDGenerator(t *testing.T) {
	id := UUIDGenerator{}.GenerateID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, UUIDGenerator{}.GenerateID())
}
