// Package hashing is an offline embedder: log-scaled term frequencies of
// content words and adjacent word pairs, hashed into a fixed number of
// signed buckets and L2-normalised. The vocabulary is never learned, so
// query and index vectors agree without a shared preparation step.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"edgarqa/internal/textproc"
)

const DefaultDimension = 512

// Embedder implements domain.Embedder.
type Embedder struct {
	dimension int
}

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) Name() string { return fmt.Sprintf("hashing-%d", e.dimension) }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	words := textproc.ContentWords(text)
	tf := make(map[string]int, len(words)*2)
	for i, w := range words {
		tf[w]++
		if i > 0 {
			tf[words[i-1]+" "+w]++
		}
	}

	acc := make([]float64, e.dimension)
	for term, count := range tf {
		h := fnv.New64a()
		_, _ = h.Write([]byte(term))
		sum := h.Sum64()
		bucket := int(sum % uint64(e.dimension))
		weight := 1 + math.Log(float64(count))
		if sum&(1<<63) != 0 {
			weight = -weight
		}
		acc[bucket] += weight
	}

	norm := 0.0
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}
