// Package retrieval turns a question into a reranked context block scoped to
// one filing.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"edgarqa/internal/apperr"
	"edgarqa/internal/domain"
	"edgarqa/internal/logger"
	"edgarqa/internal/rerank"
)

const (
	DefaultCandidates = 10
	DefaultTopN       = 5
)

var (
	escapesRe    = regexp.MustCompile(`\\+n*|[\t\n\r]`)
	multiSpaceRe = regexp.MustCompile(` {2,}`)
)

// ErrEmbedderMismatch is returned when stored vectors were produced by a
// different embedder than the one answering the query.
var ErrEmbedderMismatch = errors.New("embedder mismatch")

// Searcher is the part of the vector gateway the retriever needs.
type Searcher interface {
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error)
}

// Recorder observes retrieval outcomes.
type Recorder interface {
	Retrieval(outcome string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Retrieval(string, time.Duration) {}

type Options struct {
	Namespace  string
	Candidates int
	TopN       int
	Recorder   Recorder
}

// Result is the context handed to the answer generator. ChunkIDs follow the
// reranked order of Passages.
type Result struct {
	Context  string                   `json:"context"`
	ChunkIDs []string                 `json:"chunk_ids"`
	Passages []domain.RetrievalResult `json:"passages"`
}

// Empty reports whether no context was found.
func (r Result) Empty() bool { return r.Context == "" }

type Retriever struct {
	embedder domain.Embedder
	searcher Searcher
	reranker *rerank.Reranker
	opts     Options
}

func New(embedder domain.Embedder, searcher Searcher, reranker *rerank.Reranker, opts Options) *Retriever {
	if opts.Candidates <= 0 {
		opts.Candidates = DefaultCandidates
	}
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Retriever{embedder: embedder, searcher: searcher, reranker: reranker, opts: opts}
}

// Retrieve fetches k candidates for query under the identity filter (k <= 0
// uses the configured default), reranks them and joins the best into a context
// block. Any failure yields an empty Result and a RetrievalFailure error.
func (r *Retriever) Retrieve(ctx context.Context, query string, id domain.Identity, k int) (Result, error) {
	start := time.Now()
	res, err := r.retrieve(ctx, query, id, k)
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
		logger.Error(ctx, "retrieval failed", err, "query", query)
		res, err = Result{}, apperr.Wrap(err, apperr.KindRetrievalFailure, "retrieve")
	case res.Empty():
		outcome = "empty"
	}
	r.opts.Recorder.Retrieval(outcome, time.Since(start))
	return res, err
}

func (r *Retriever) retrieve(ctx context.Context, query string, id domain.Identity, k int) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, errors.New("query is empty")
	}
	if err := id.Validate(); err != nil {
		return Result{}, err
	}
	if k <= 0 {
		k = r.opts.Candidates
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return Result{}, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}

	matches, err := r.searcher.Query(ctx, r.opts.Namespace, vectors[0], k, id.Filter())
	if err != nil {
		return Result{}, err
	}
	logger.Debug(ctx, "retrieved candidates", "count", len(matches), "k", k)
	if len(matches) == 0 {
		return Result{}, nil
	}

	candidates := make([]rerank.Candidate, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.Embedder != "" && m.Metadata.Embedder != r.embedder.Name() {
			return Result{}, fmt.Errorf("%w: %s indexed with %s, querying with %s",
				ErrEmbedderMismatch, m.ID, m.Metadata.Embedder, r.embedder.Name())
		}
		candidates = append(candidates, rerank.Candidate{
			ChunkID: m.ID,
			Content: FormatPassage(m.Metadata.Content, m.ID),
		})
	}

	passages, err := r.reranker.Rerank(ctx, query, candidates, r.opts.TopN)
	if err != nil {
		return Result{}, fmt.Errorf("rerank: %w", err)
	}

	out := Result{Passages: passages, ChunkIDs: make([]string, len(passages))}
	texts := make([]string, len(passages))
	for i, p := range passages {
		out.ChunkIDs[i] = p.ChunkID
		texts[i] = p.Content
	}
	out.Context = strings.Join(texts, "\n\n")
	return out, nil
}

// FormatPassage cleans stored chunk text and tags it with its source id.
func FormatPassage(content, chunkID string) string {
	return CleanText(content) + "\n\n(Source: " + chunkID + ")"
}

// CleanText removes literal backslash escapes and control whitespace, then
// collapses runs of spaces.
func CleanText(text string) string {
	text = escapesRe.ReplaceAllString(text, "")
	return multiSpaceRe.ReplaceAllString(text, " ")
}
