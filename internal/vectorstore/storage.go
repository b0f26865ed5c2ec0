// Package vectorstore holds the vector index backends and the gateway that
// every pipeline stage talks to.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
)

const (
	DefaultBatchSize = 10
	DefaultTimeout   = 30 * time.Second
)

// BatchRecorder observes upsert batch outcomes.
type BatchRecorder interface {
	UpsertBatch(ok bool)
}

type nopBatchRecorder struct{}

func (nopBatchRecorder) UpsertBatch(bool) {}

// Options configures a Gateway. Zero values select defaults.
type Options struct {
	BatchSize int
	Timeout   time.Duration
	Recorder  BatchRecorder
}

// Gateway batches writes, bounds every backend call with a timeout and
// answers presence checks for a filing identity.
type Gateway struct {
	store     domain.VectorStore
	batchSize int
	timeout   time.Duration
	recorder  BatchRecorder
	dimension int
}

func NewGateway(store domain.VectorStore, opts Options) *Gateway {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Recorder == nil {
		opts.Recorder = nopBatchRecorder{}
	}
	return &Gateway{store: store, batchSize: opts.BatchSize, timeout: opts.Timeout, recorder: opts.Recorder}
}

// Init prepares the backend for vectors of the given dimension. It is safe to
// call repeatedly with the same dimension.
func (g *Gateway) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return apperr.Wrap(fmt.Errorf("invalid dimension %d", dimension), apperr.KindInvalidInput, "vectorstore.Init")
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	if err := g.store.Init(ctx, dimension); err != nil {
		return apperr.Wrap(err, apperr.KindUpstream, "vectorstore.Init")
	}
	g.dimension = dimension
	return nil
}

// UpsertReport summarises a batched upsert.
type UpsertReport struct {
	Batches  int
	Failed   int
	Upserted int
	Errors   []error
}

// Err joins the batch errors, or returns nil when every batch succeeded.
func (r UpsertReport) Err() error {
	return errors.Join(r.Errors...)
}

// Upsert writes vectors in batches. A failed batch is logged and counted and
// the remaining batches are still attempted.
func (g *Gateway) Upsert(ctx context.Context, namespace string, vectors []domain.IndexedVector) UpsertReport {
	var report UpsertReport
	for start := 0; start < len(vectors); start += g.batchSize {
		end := min(start+g.batchSize, len(vectors))
		batch := vectors[start:end]
		report.Batches++

		err := g.upsertBatch(ctx, namespace, batch)
		g.recorder.UpsertBatch(err == nil)
		if err != nil {
			err = apperr.Wrap(fmt.Errorf("batch %d-%d: %w", start, end-1, err), apperr.KindUpsertBatchFailure, "vectorstore.Upsert")
			logger.Error(ctx, "upsert batch failed", err, "namespace", namespace, "first_id", batch[0].ID, "size", len(batch))
			report.Failed++
			report.Errors = append(report.Errors, err)
			continue
		}
		report.Upserted += len(batch)
	}
	logger.Debug(ctx, "upsert finished", "namespace", namespace, "upserted", report.Upserted, "failed_batches", report.Failed)
	return report
}

func (g *Gateway) upsertBatch(ctx context.Context, namespace string, batch []domain.IndexedVector) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.store.Upsert(ctx, namespace, batch)
}

// Query returns the topK nearest vectors satisfying filter. An empty filter
// leaves the search unrestricted.
func (g *Gateway) Query(ctx context.Context, namespace string, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		topK = 1
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	matches, err := g.store.Query(ctx, namespace, vector, topK, filter)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, "vectorstore.Query")
	}
	return matches, nil
}

// Exists reports whether any vector of the identity is stored in namespace.
// Backends with a filter-only primitive answer directly; the others are asked
// for one zero-vector match under the identity filter.
func (g *Gateway) Exists(ctx context.Context, namespace string, id domain.Identity) (bool, error) {
	const op = "vectorstore.Exists"
	if err := id.Validate(); err != nil {
		return false, apperr.Wrap(err, apperr.KindInvalidInput, op)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if counter, ok := g.store.(domain.FilterCounter); ok {
		found, err := counter.Exists(ctx, namespace, id.Filter())
		if err != nil {
			return false, apperr.Wrap(err, apperr.KindUpstream, op)
		}
		return found, nil
	}
	if g.dimension <= 0 {
		return false, apperr.Wrap(errors.New("store not initialised"), apperr.KindInvalidInput, op)
	}
	matches, err := g.store.Query(ctx, namespace, make([]float32, g.dimension), 1, id.Filter())
	if err != nil {
		return false, apperr.Wrap(err, apperr.KindUpstream, op)
	}
	return len(matches) > 0, nil
}
