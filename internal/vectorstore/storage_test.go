package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/vectorstore/memory"
)

var (
	apple     = domain.Identity{CompanyID: "320193", FiscalYear: 2018, Split: domain.SplitTrain}
	appleNext = domain.Identity{CompanyID: "320193", FiscalYear: 2019, Split: domain.SplitTrain}
)

func vectorsFor(id domain.Identity, n int) []domain.IndexedVector {
	out := make([]domain.IndexedVector, n)
	for i := range out {
		out[i] = domain.IndexedVector{
			ID:        domain.VectorID(id, "section_7", i),
			Embedding: []float32{1, float32(i), 0},
			Metadata: domain.VectorMetadata{
				CompanyID:  id.CompanyID,
				FiscalYear: id.FiscalYear,
				Split:      id.Split,
				Section:    "section_7",
				ChunkIndex: i,
				Content:    fmt.Sprintf("passage %d", i),
			},
		}
	}
	return out
}

type countingRecorder struct{ ok, failed int }

func (r *countingRecorder) UpsertBatch(ok bool) {
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

// flakyStore fails the n-th Upsert call.
type flakyStore struct {
	domain.VectorStore
	calls  int
	failOn int
}

func (s *flakyStore) Upsert(ctx context.Context, ns string, vectors []domain.IndexedVector) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("connection reset")
	}
	return s.VectorStore.Upsert(ctx, ns, vectors)
}

// queryOnly hides the filter-only primitive of the wrapped store.
type queryOnly struct{ domain.VectorStore }

type slowStore struct{ domain.VectorStore }

func (slowStore) Query(ctx context.Context, _ string, _ []float32, _ int, _ domain.Filter) ([]domain.Match, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestUpsertContinuesPastFailedBatch(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStorage()
	store := &flakyStore{VectorStore: mem, failOn: 2}
	rec := &countingRecorder{}
	gw := NewGateway(store, Options{Recorder: rec})
	require.NoError(t, gw.Init(ctx, 3))

	report := gw.Upsert(ctx, "filings", vectorsFor(apple, 25))
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 15, report.Upserted)
	require.Len(t, report.Errors, 1)
	assert.True(t, apperr.Is(report.Errors[0], apperr.KindUpsertBatchFailure))
	assert.Error(t, report.Err())
	assert.Equal(t, 15, mem.Len("filings"))
	assert.Equal(t, 2, rec.ok)
	assert.Equal(t, 1, rec.failed)
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStorage()
	gw := NewGateway(mem, Options{})
	require.NoError(t, gw.Init(ctx, 3))

	vecs := vectorsFor(apple, 4)
	require.NoError(t, gw.Upsert(ctx, "filings", vecs).Err())
	require.NoError(t, gw.Upsert(ctx, "filings", vecs).Err())
	assert.Equal(t, 4, mem.Len("filings"))
}

func TestQueryRespectsFilter(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(memory.NewStorage(), Options{})
	require.NoError(t, gw.Init(ctx, 3))
	require.NoError(t, gw.Upsert(ctx, "filings", vectorsFor(apple, 3)).Err())
	require.NoError(t, gw.Upsert(ctx, "filings", vectorsFor(appleNext, 3)).Err())

	matches, err := gw.Query(ctx, "filings", []float32{1, 0, 0}, 10, apple.Filter())
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Equal(t, 2018, m.Metadata.FiscalYear)
	}
	assert.Equal(t, "320193_2018_section_7_0", matches[0].ID)

	all, err := gw.Query(ctx, "filings", []float32{1, 0, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	none, err := gw.Query(ctx, "other", []float32{1, 0, 0}, 10, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	for name, wrap := range map[string]func(*memory.Storage) domain.VectorStore{
		"filter primitive":    func(s *memory.Storage) domain.VectorStore { return s },
		"zero-vector probing": func(s *memory.Storage) domain.VectorStore { return queryOnly{s} },
	} {
		t.Run(name, func(t *testing.T) {
			gw := NewGateway(wrap(memory.NewStorage()), Options{})
			require.NoError(t, gw.Init(ctx, 3))

			found, err := gw.Exists(ctx, "filings", apple)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, gw.Upsert(ctx, "filings", vectorsFor(apple, 2)).Err())

			found, err = gw.Exists(ctx, "filings", apple)
			require.NoError(t, err)
			assert.True(t, found)

			found, err = gw.Exists(ctx, "filings", appleNext)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestExistsRejectsIncompleteIdentity(t *testing.T) {
	gw := NewGateway(memory.NewStorage(), Options{})
	_, err := gw.Exists(context.Background(), "filings", domain.Identity{CompanyID: "320193"})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
}

func TestQueryTimesOut(t *testing.T) {
	gw := NewGateway(slowStore{memory.NewStorage()}, Options{Timeout: 20 * time.Millisecond})
	_, err := gw.Query(context.Background(), "filings", []float32{1}, 1, domain.Filter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}
