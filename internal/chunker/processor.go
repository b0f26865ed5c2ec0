package chunker

import (
	"context"
	"fmt"
	"strings"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
)

// Recorder receives per-section outcomes.
type Recorder interface {
	SectionProcessed(method string, chunks int)
	SectionFailed(method string)
}

type nopRecorder struct{}

func (nopRecorder) SectionProcessed(string, int) {}
func (nopRecorder) SectionFailed(string)         {}

// SectionFailure records a section whose text could not be segmented.
type SectionFailure struct {
	Section string
	Err     error
}

// Result is the output of processing one filing.
type Result struct {
	Filing   *domain.Filing
	Skipped  []string
	Failures []SectionFailure
}

// Processor turns a raw filing into a chunk bundle.
type Processor struct {
	segmenter *Segmenter
	recorder  Recorder
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRecorder reports section outcomes to r.
func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

func NewProcessor(seg *Segmenter, opts ...ProcessorOption) *Processor {
	p := &Processor{segmenter: seg, recorder: nopRecorder{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process segments every section of raw in natural key order. Sections with
// missing or non-text content keep their metadata and get no chunks; a section
// that fails to segment is logged, recorded and skipped. Only an invalid
// identity or an unsupported method aborts the filing.
func (p *Processor) Process(ctx context.Context, raw domain.RawFiling, id domain.Identity, method Method, cfg Config) (*Result, error) {
	const op = "chunker.Process"
	if err := id.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalidInput, op)
	}
	if _, ok := p.segmenter.strategies[method]; !ok {
		return nil, apperr.Wrap(fmt.Errorf("unsupported method %q", method), apperr.KindUnsupportedMethod, op)
	}
	ctx = logger.WithIdentity(ctx, id)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		if domain.IsSectionKey(k) {
			keys = append(keys, k)
		}
	}
	domain.SortSectionKeys(keys)

	res := &Result{Filing: &domain.Filing{Identity: id, Sections: make(map[string]*domain.Section, len(keys))}}
	for _, key := range keys {
		text, _ := raw[key].(string)
		sec := &domain.Section{
			Name:       key,
			ItemNumber: ExtractItemNumber(text),
			ItemName:   ExtractItemName(text),
		}
		res.Filing.Sections[key] = sec
		if strings.TrimSpace(text) == "" {
			res.Skipped = append(res.Skipped, key)
			continue
		}

		chunks, err := p.segmentSection(ctx, key, text, method, cfg)
		if err != nil {
			if apperr.KindOf(err).Fatal() {
				return nil, err
			}
			logger.Error(ctx, "section processing failed", err, "section", key, "method", string(method))
			p.recorder.SectionFailed(string(method))
			res.Failures = append(res.Failures, SectionFailure{Section: key, Err: err})
			continue
		}
		for i := range chunks {
			chunks[i].ChunkID = domain.VectorID(id, key, i)
		}
		sec.Chunks = chunks
		res.Filing.TotalChunks += len(chunks)
		p.recorder.SectionProcessed(string(method), len(chunks))
	}

	logger.Info(ctx, "filing processed",
		"method", string(method),
		"sections", len(keys),
		"chunks", res.Filing.TotalChunks,
		"skipped", len(res.Skipped),
		"failed", len(res.Failures))
	return res, nil
}

func (p *Processor) segmentSection(ctx context.Context, key, text string, method Method, cfg Config) (chunks []domain.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = apperr.Wrap(fmt.Errorf("section %s: panic: %v", key, r), apperr.KindSectionProcessingFailure, "chunker.Process")
		}
	}()
	chunks, err = p.segmenter.Segment(ctx, text, method, cfg)
	if err != nil && !apperr.KindOf(err).Fatal() {
		err = apperr.Wrap(fmt.Errorf("section %s: %w", key, err), apperr.KindSectionProcessingFailure, "chunker.Process")
	}
	return chunks, err
}
