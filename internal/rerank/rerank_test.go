package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScorer struct {
	scores []float64
	err    error
}

func (fixedScorer) Name() string { return "fixed" }

func (f fixedScorer) Score(context.Context, string, []string) ([]float64, error) {
	return f.scores, f.err
}

func ids(t *testing.T, r *Reranker, cands []Candidate, topN int) []string {
	t.Helper()
	res, err := r.Rerank(context.Background(), "q", cands, topN)
	require.NoError(t, err)
	out := make([]string, len(res))
	for i, x := range res {
		out[i] = x.ChunkID
	}
	return out
}

func TestRerankOrdersByScoreAndTruncates(t *testing.T) {
	cands := []Candidate{{"A", "a"}, {"B", "b"}, {"C", "c"}}
	r := New(fixedScorer{scores: []float64{0.2, 0.9, 0.5}}, 0)

	assert.Equal(t, []string{"B", "C"}, ids(t, r, cands, 2))
	assert.Equal(t, []string{"B", "C", "A"}, ids(t, r, cands, 0))
	assert.Equal(t, []string{"B", "C", "A"}, ids(t, r, cands, 10))
}

func TestRerankKeepsInputOrderOnTies(t *testing.T) {
	cands := []Candidate{{"A", "a"}, {"B", "b"}, {"C", "c"}}
	r := New(fixedScorer{scores: []float64{0.5, 0.5, 0.7}}, 0)
	assert.Equal(t, []string{"C", "A", "B"}, ids(t, r, cands, 0))
}

func TestRerankRejectsScoreCountMismatch(t *testing.T) {
	r := New(fixedScorer{scores: []float64{1}}, 0)
	_, err := r.Rerank(context.Background(), "q", []Candidate{{"A", "a"}, {"B", "b"}}, 1)
	require.Error(t, err)

	r = New(fixedScorer{err: errors.New("model down")}, 0)
	_, err = r.Rerank(context.Background(), "q", []Candidate{{"A", "a"}}, 1)
	require.ErrorContains(t, err, "model down")
}

func TestRerankEmpty(t *testing.T) {
	res, err := New(LexicalScorer{}, 0).Rerank(context.Background(), "q", nil, 3)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLexicalScorerIsDeterministicAndIdempotent(t *testing.T) {
	r := New(LexicalScorer{}, 0)
	cands := []Candidate{
		{"1", "The company sells smartphones and tablets."},
		{"2", "Revenue grew because smartphone revenue increased in every region."},
		{"3", "Legal proceedings are described in Note 10."},
	}
	first, err := r.Rerank(context.Background(), "What drove revenue growth?", cands, 3)
	require.NoError(t, err)
	second, err := r.Rerank(context.Background(), "What drove revenue growth?", cands, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "2", first[0].ChunkID)

	// Reranking an already reranked list gives the same order.
	again := make([]Candidate, len(first))
	for i, x := range first {
		again[i] = Candidate{x.ChunkID, x.Content}
	}
	third, err := r.Rerank(context.Background(), "What drove revenue growth?", again, 3)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestOverlapOchiai(t *testing.T) {
	q := contentSet("revenue growth")
	assert.InDelta(t, 1.0, overlapOchiai(q, "growth of revenue"), 1e-9)
	assert.InDelta(t, 0.5, overlapOchiai(q, "revenue declined"), 1e-9)
	assert.Zero(t, overlapOchiai(q, "the and of"))
	assert.Zero(t, overlapOchiai(contentSet(""), "revenue"))
}

func TestCrossEncoderScoresInPassageOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what risks?", req.Query)
		assert.Len(t, req.Texts, 3)
		_, _ = w.Write([]byte(`[{"index":1,"score":3.5},{"index":2,"score":0.1},{"index":0,"score":-2}]`))
	}))
	defer srv.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL, Model: "test"})
	require.NoError(t, err)
	assert.Equal(t, "cross-encoder:test", ce.Name())

	scores, err := ce.Score(context.Background(), "what risks?", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 3.5, 0.1}, scores)
}

func TestCrossEncoderAcceptsResultsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.7},{"index":1,"relevance_score":0.2}]}`))
	}))
	defer srv.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	scores, err := ce.Score(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.7, 0.2}, scores)
}

func TestCrossEncoderMissingPassage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"index":0,"score":1}]`))
	}))
	defer srv.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = ce.Score(context.Background(), "q", []string{"a", "b"})
	require.ErrorContains(t, err, "missing passage 1")
}

func TestNewCrossEncoderRequiresURL(t *testing.T) {
	_, err := NewCrossEncoder(CrossEncoderConfig{})
	require.Error(t, err)
}
