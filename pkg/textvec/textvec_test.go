package textvec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"data", "science", "101"}, Tokenize("Data-Science, 101!"))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestDistance_Identical(t *testing.T) {
	a := Embed("database systems course", DefaultDimensions)
	b := Embed("Database systems COURSE", DefaultDimensions)
	assert.InDelta(t, 0, Distance(a, b), 1e-9)
}

func TestDistance_Empty(t *testing.T) {
	a := Embed("", DefaultDimensions)
	b := Embed("anything", DefaultDimensions)
	assert.Equal(t, 1.0, Distance(a, b))
	assert.Equal(t, 1.0, Distance(Vector{1}, Vector{1, 2}))
}

func TestRank(t *testing.T) {
	docs := []string{
		"cooking pasta at home",
		"introduction to database systems",
		"advanced database systems and query planning",
	}
	got := Rank("database systems", docs, 2)
	require.Len(t, got, 2)
	assert.NotEqual(t, 0, got[0].Index)
	assert.NotEqual(t, 0, got[1].Index)
	assert.LessOrEqual(t, got[0].Distance, got[1].Distance)

	assert.Nil(t, Rank("x", docs, 0))
	assert.Nil(t, Rank("x", nil, 3))
	assert.Len(t, Rank("x", docs, 10), 3)
}
