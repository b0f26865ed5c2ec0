package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedIsDeterministicAndNormalised(t *testing.T) {
	e := NewEmbedder(64)
	assert.Equal(t, "hashing-64", e.Name())

	first, err := e.Embed(context.Background(), []string{"Net sales increased to $265 billion."})
	require.NoError(t, err)
	second, err := NewEmbedder(64).Embed(context.Background(), []string{"Net sales increased to $265 billion."})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	require.Len(t, first[0], 64)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(first[0], first[0])), 1e-6)
}

func TestRelatedTextScoresHigher(t *testing.T) {
	e := NewEmbedder(0)
	vecs, err := e.Embed(context.Background(), []string{
		"What were the total net sales?",
		"Total net sales rose 16% to $265.6 billion during 2018.",
		"The company had approximately 132,000 full-time employees.",
	})
	require.NoError(t, err)
	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestStopwordOnlyTextIsZero(t *testing.T) {
	vecs, err := NewEmbedder(8).Embed(context.Background(), []string{"the and of", ""})
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vecs[0])
	assert.Equal(t, make([]float32, 8), vecs[1])
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, []string{"cash"})
	assert.ErrorIs(t, err, context.Canceled)
}
