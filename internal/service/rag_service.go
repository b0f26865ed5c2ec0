// Package service wires chunking, indexing, retrieval and answering into the
// operations exposed by the CLI, API and TUI.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"edgarqa/internal/answer"
	"edgarqa/internal/apperr"
	"edgarqa/internal/chunker"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
	"edgarqa/internal/retrieval"
	"edgarqa/internal/summarizer"
	"edgarqa/internal/vectorstore"
)

// DefaultNamespace is the vector namespace used when none is configured.
const DefaultNamespace = "edgar"

// DataPoint is one of the standard questions asked of every filing.
type DataPoint struct {
	Label    string `json:"label"`
	Question string `json:"question"`
}

// StandardDataPoints are answered by AnalyzeFiling.
var StandardDataPoints = []DataPoint{
	{"Total stockholders", "How many record holders of the common stock were reported for the latest year?"},
	{"Employee headcount", "What is the employee headcount for the latest year?"},
	{"Net sales", "What was the net sales for the latest year?"},
	{"Total cash and cash equivalents", "What was the total cash and cash equivalents for the latest year?"},
	{"Quarterly cash dividend", "What is the quarterly cash dividend declared for the latest year?"},
}

// Deps are the collaborators of a RAGService. Bundles and Summarizer are
// optional.
type Deps struct {
	Source     domain.FilingSource
	Bundles    domain.BundleStore
	Processor  *chunker.Processor
	Embedder   domain.Embedder
	Gateway    *vectorstore.Gateway
	Retriever  *retrieval.Retriever
	Generator  *answer.Generator
	Summarizer *summarizer.FrequencySummarizer
}

type Options struct {
	Namespace string
	Method    chunker.Method
	Chunker   chunker.Config
}

type RAGService struct {
	deps Deps
	opts Options

	mu    sync.Mutex
	ready bool
}

func NewRAGService(deps Deps, opts Options) *RAGService {
	if opts.Namespace == "" {
		opts.Namespace = DefaultNamespace
	}
	if opts.Method == "" {
		opts.Method = chunker.MethodFixedWindow
	}
	opts.Chunker = opts.Chunker.WithDefaults()
	return &RAGService{deps: deps, opts: opts}
}

// Namespace returns the vector namespace the service writes to.
func (s *RAGService) Namespace() string { return s.opts.Namespace }

// Chunk returns the chunk bundle of a filing, from the bundle store when
// cached, otherwise by fetching and segmenting the raw record.
func (s *RAGService) Chunk(ctx context.Context, id domain.Identity) (*chunker.Result, error) {
	const op = "service.Chunk"
	if err := id.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidInput, op)
	}
	ctx = logger.WithIdentity(ctx, id)
	if s.deps.Bundles != nil {
		f, found, err := s.deps.Bundles.Load(ctx, id)
		switch {
		case err != nil:
			logger.Warn(ctx, "bundle cache unreadable, re-chunking", "error", err.Error())
		case found:
			logger.Debug(ctx, "bundle cache hit", "chunks", f.TotalChunks)
			return &chunker.Result{Filing: f}, nil
		}
	}

	raw, found, err := s.deps.Source.Fetch(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindUpstream, op)
	}
	if !found {
		return nil, apperr.Wrap(fmt.Errorf("no filing record for %s", id), apperr.KindNotFound, op)
	}
	res, err := s.deps.Processor.Process(ctx, raw, id, s.opts.Method, s.opts.Chunker)
	if err != nil {
		return nil, err
	}
	if s.deps.Bundles != nil {
		if err := s.deps.Bundles.Save(ctx, res.Filing); err != nil {
			logger.Warn(ctx, "failed to cache chunk bundle", "error", err.Error())
		}
	}
	return res, nil
}

// IndexReport describes one IndexFiling call.
type IndexReport struct {
	Identity        domain.Identity `json:"identity"`
	AlreadyIndexed  bool            `json:"already_indexed"`
	Sections        int             `json:"sections"`
	SkippedSections []string        `json:"skipped_sections,omitempty"`
	Vectors         int             `json:"vectors"`
	FailedBatches   int             `json:"failed_batches"`

	filing *domain.Filing
}

// IndexFiling embeds and stores every chunk of a filing unless vectors for its
// identity are already present. A section whose embedding fails is skipped.
func (s *RAGService) IndexFiling(ctx context.Context, id domain.Identity) (*IndexReport, error) {
	const op = "service.IndexFiling"
	if err := id.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidInput, op)
	}
	ctx = logger.WithIdentity(ctx, id)
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	report := &IndexReport{Identity: id}

	exists, err := s.deps.Gateway.Exists(ctx, s.opts.Namespace, id)
	if err != nil {
		return nil, err
	}
	if exists {
		logger.Info(ctx, "filing already indexed")
		report.AlreadyIndexed = true
		return report, nil
	}

	res, err := s.Chunk(ctx, id)
	if err != nil {
		return nil, err
	}
	report.filing = res.Filing
	report.SkippedSections = append(report.SkippedSections, res.Skipped...)
	for _, f := range res.Failures {
		report.SkippedSections = append(report.SkippedSections, f.Section)
	}

	for _, key := range res.Filing.SectionKeys() {
		sec := res.Filing.Sections[key]
		if len(sec.Chunks) == 0 {
			continue
		}
		vectors, err := s.sectionVectors(ctx, id, key, sec)
		if err != nil {
			logger.Error(ctx, "section embedding failed, skipping", err, "section", key)
			report.SkippedSections = append(report.SkippedSections, key)
			continue
		}
		up := s.deps.Gateway.Upsert(ctx, s.opts.Namespace, vectors)
		report.Sections++
		report.Vectors += up.Upserted
		report.FailedBatches += up.Failed
	}
	logger.Info(ctx, "filing indexed",
		"sections", report.Sections, "vectors", report.Vectors,
		"skipped", len(report.SkippedSections), "failed_batches", report.FailedBatches)
	return report, nil
}

func (s *RAGService) sectionVectors(ctx context.Context, id domain.Identity, key string, sec *domain.Section) ([]domain.IndexedVector, error) {
	texts := make([]string, len(sec.Chunks))
	for i, c := range sec.Chunks {
		texts[i] = c.Content
	}
	embeddings, err := s.deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(texts))
	}
	vectors := make([]domain.IndexedVector, len(sec.Chunks))
	for i, c := range sec.Chunks {
		vectors[i] = domain.IndexedVector{
			ID:        domain.VectorID(id, key, i),
			Embedding: embeddings[i],
			Metadata: domain.VectorMetadata{
				CompanyID:  id.CompanyID,
				FiscalYear: id.FiscalYear,
				Split:      id.Split,
				Section:    key,
				ItemNumber: sec.ItemNumber,
				ItemName:   sec.ItemName,
				ChunkIndex: i,
				Content:    c.Content,
				Embedder:   s.deps.Embedder.Name(),
			},
		}
	}
	return vectors, nil
}

// ensureReady initialises the vector store once, probing the embedder when
// its dimension is only known after a first call.
func (s *RAGService) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	dim := s.deps.Embedder.Dimension()
	if dim <= 0 {
		vecs, err := s.deps.Embedder.Embed(ctx, []string{"dimension probe"})
		if err != nil {
			return apperr.Wrap(err, apperr.KindUpstream, "service.ensureReady")
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return apperr.Wrap(errors.New("embedder returned no vector"), apperr.KindUpstream, "service.ensureReady")
		}
		dim = len(vecs[0])
	}
	if err := s.deps.Gateway.Init(ctx, dim); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Ask answers a question about an indexed filing. Retrieval failures are
// treated as missing context and generation failures are reported in the
// answer text; only invalid input returns an error.
func (s *RAGService) Ask(ctx context.Context, id domain.Identity, question string) (answer.Answer, error) {
	const op = "service.Ask"
	if err := id.Validate(); err != nil {
		return answer.Answer{}, apperr.Wrap(err, apperr.KindInvalidInput, op)
	}
	ctx = logger.WithIdentity(ctx, id)
	if err := s.ensureReady(ctx); err != nil {
		return answer.Answer{}, err
	}

	res, err := s.deps.Retriever.Retrieve(ctx, question, id, 0)
	if err != nil {
		res = retrieval.Result{}
	}
	a, err := s.deps.Generator.Generate(ctx, question, res.Context, res.ChunkIDs)
	if err != nil && !apperr.Is(err, apperr.KindAnswerGenerationFailure) {
		return answer.Answer{}, err
	}
	return a, nil
}

// DataPointResult is the answer to one standard question.
type DataPointResult struct {
	DataPoint
	answer.Answer
}

// Report is the result of AnalyzeFiling.
type Report struct {
	Identity domain.Identity   `json:"identity"`
	Overview string            `json:"overview,omitempty"`
	Index    *IndexReport      `json:"index"`
	Results  []DataPointResult `json:"results"`
}

// AnalyzeFiling indexes a filing if needed and answers the standard data
// points.
func (s *RAGService) AnalyzeFiling(ctx context.Context, id domain.Identity) (*Report, error) {
	if logger.RunID(ctx) == "" {
		ctx = logger.WithRun(ctx)
	}
	idx, err := s.IndexFiling(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithIdentity(ctx, id)
	report := &Report{Identity: id, Index: idx, Overview: s.overview(ctx, id, idx.filing)}
	for _, dp := range StandardDataPoints {
		a, err := s.Ask(ctx, id, dp.Question)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, DataPointResult{DataPoint: dp, Answer: a})
	}
	return report, nil
}

// Overview summarizes the Business section of a filing when its bundle is at
// hand. It never fetches.
func (s *RAGService) Overview(ctx context.Context, id domain.Identity) string {
	return s.overview(ctx, id, nil)
}

func (s *RAGService) overview(ctx context.Context, id domain.Identity, f *domain.Filing) string {
	if s.deps.Summarizer == nil {
		return ""
	}
	if f == nil && s.deps.Bundles != nil {
		loaded, found, err := s.deps.Bundles.Load(ctx, id)
		if err != nil || !found {
			return ""
		}
		f = loaded
	}
	return s.deps.Summarizer.Overview(f)
}
