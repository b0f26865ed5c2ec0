package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgarqa/internal/domain"
)

func vec(id string, year int, embedding ...float32) domain.IndexedVector {
	return domain.IndexedVector{
		ID:        id,
		Embedding: embedding,
		Metadata:  domain.VectorMetadata{CompanyID: "29669", FiscalYear: year, Split: domain.SplitTest, Content: id},
	}
}

func TestQueryRanksByCosine(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, "ns", []domain.IndexedVector{
		vec("far", 2018, 0, 1),
		vec("near", 2018, 2, 0.1),
		vec("tie-a", 2018, 1, 1),
		vec("tie-b", 2018, 1, 1),
	}))

	got, err := s.Query(ctx, "ns", []float32{1, 0}, 3, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"near", "tie-a", "tie-b"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.InDelta(t, 0.9988, got[0].Score, 1e-3)
}

func TestUpsertReplacesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, "ns", []domain.IndexedVector{vec("a", 2018, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, "ns", []domain.IndexedVector{vec("a", 2019, 0, 1)}))
	assert.Equal(t, 1, s.Len("ns"))

	found, err := s.Exists(ctx, "ns", domain.Filter{FiscalYear: 2019})
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Upsert(ctx, "ns", []domain.IndexedVector{vec("a", 2018, 1, 0, 0)}))
	require.NoError(t, s.Upsert(ctx, "ns", []domain.IndexedVector{vec("a", 2018, 1, 0)}))
	assert.Error(t, s.Init(ctx, 3))
	assert.NoError(t, s.Init(ctx, 2))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index", "vectors.json")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, "ns", []domain.IndexedVector{vec("a", 2018, 1, 0), vec("b", 2018, 0, 1)}))

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len("ns"))
	got, err := reopened.Query(ctx, "ns", []float32{0, 1}, 1, domain.Filter{CompanyID: "29669"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}
