package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/fragstore/internal/domain/fragment"
	"github.com/alem-hub/fragstore/internal/domain/partition"
	"github.com/alem-hub/fragstore/internal/domain/shared"
)

func newGateway() *Gateway {
	return New(fragment.Partition{ID: "DBVS1/db11", Store: "DBVS1", Database: "db11"})
}

func TestGateway_Collections(t *testing.T) {
	ctx := context.Background()
	g := newGateway()

	_, err := g.GetCollection(ctx, "students")
	assert.True(t, shared.IsNotFound(err))

	c1, err := g.GetOrCreateCollection(ctx, "students")
	require.NoError(t, err)
	c2, err := g.GetCollection(ctx, "students")
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	require.NoError(t, g.Close())
	_, err = g.GetOrCreateCollection(ctx, "students")
	assert.Error(t, err)
}

func TestCollection_CRUD(t *testing.T) {
	ctx := context.Background()
	col, err := newGateway().GetOrCreateCollection(ctx, "students")
	require.NoError(t, err)

	require.NoError(t, col.Add(ctx,
		partition.Record{ID: "1", Document: "a", Metadata: partition.Metadata{"study_year": 1}},
		partition.Record{ID: "2", Document: "b", Metadata: partition.Metadata{"study_year": 2}},
	))

	all, err := col.Get(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)

	all[0].Metadata["study_year"] = 99
	again, err := col.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, again[0].Metadata["study_year"])

	doc := "a2"
	require.NoError(t, col.Update(ctx, partition.Update{ID: "1", Document: &doc}))
	again, _ = col.Get(ctx, "1", "missing")
	require.Len(t, again, 1)
	assert.Equal(t, "a2", again[0].Document)
	assert.Equal(t, 1, again[0].Metadata["study_year"])

	err = col.Update(ctx, partition.Update{ID: "missing"}, partition.Update{ID: "1", Document: &doc})
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, col.Delete(ctx, "1", "missing"))
	all, _ = col.Get(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "2", all[0].ID)

	assert.Error(t, col.Add(ctx, partition.Record{}))
}

func TestCollection_AddRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	col, err := newGateway().GetOrCreateCollection(ctx, "students")
	require.NoError(t, err)

	err = col.Add(ctx,
		partition.Record{ID: "1", Document: "a"},
		partition.Record{ID: ""},
	)
	assert.True(t, shared.IsValidation(err))

	all, err := col.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCollection_Query(t *testing.T) {
	ctx := context.Background()
	col, err := newGateway().GetOrCreateCollection(ctx, "courses")
	require.NoError(t, err)
	require.NoError(t, col.Add(ctx,
		partition.Record{ID: "1", Document: "Database Systems"},
		partition.Record{ID: "2", Document: "Cooking for beginners"},
	))

	matches, err := col.Query(ctx, "database systems", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "1", matches[0].ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-9)
}
