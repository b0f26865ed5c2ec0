// Package rerank orders retrieved passages by query relevance.
package rerank

import (
	"context"
	"fmt"
	"sort"
	"time"

	"edgarqa/internal/domain"
)

// Candidate is a passage awaiting reranking.
type Candidate struct {
	ChunkID string
	Content string
}

// Reranker scores candidates with a Scorer and keeps the best topN.
type Reranker struct {
	scorer  domain.Scorer
	timeout time.Duration
}

func New(scorer domain.Scorer, timeout time.Duration) *Reranker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reranker{scorer: scorer, timeout: timeout}
}

// Name returns the scorer name.
func (r *Reranker) Name() string { return r.scorer.Name() }

// Rerank scores every (query, candidate) pair, sorts by descending score with
// ties kept in input order, and truncates to topN. topN <= 0 keeps all.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate, topN int) ([]domain.RetrievalResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	passages := make([]string, len(candidates))
	for i, c := range candidates {
		passages[i] = c.Content
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	scores, err := r.scorer.Score(ctx, query, passages)
	if err != nil {
		return nil, fmt.Errorf("%s scorer: %w", r.scorer.Name(), err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%s scorer: got %d scores for %d passages", r.scorer.Name(), len(scores), len(candidates))
	}

	results := make([]domain.RetrievalResult, len(candidates))
	for i, c := range candidates {
		results[i] = domain.RetrievalResult{ChunkID: c.ChunkID, Content: c.Content, RelevanceScore: scores[i]}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].RelevanceScore > results[j].RelevanceScore })
	if topN > 0 && topN < len(results) {
		results = results[:topN]
	}
	return results, nil
}
