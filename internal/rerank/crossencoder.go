package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"edgarqa/internal/httpclient"
)

// CrossEncoderConfig configures a CrossEncoder.
type CrossEncoderConfig struct {
	// BaseURL of a text-embeddings-inference server, or any service exposing
	// POST /rerank.
	BaseURL           string
	Model             string
	APIKeyEnv         string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// CrossEncoder scores (query, passage) pairs with a remote cross-encoder model.
type CrossEncoder struct {
	url   string
	model string
	http  *httpclient.Client
}

func NewCrossEncoder(cfg CrossEncoderConfig) (*CrossEncoder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cross-encoder base url is required")
	}
	if cfg.Model == "" {
		cfg.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	headers := map[string]string{}
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			headers["Authorization"] = "Bearer " + key
		}
	}
	return &CrossEncoder{
		url:   strings.TrimRight(cfg.BaseURL, "/") + "/rerank",
		model: cfg.Model,
		http: httpclient.New(httpclient.Options{
			Timeout:           cfg.Timeout,
			MaxRetries:        cfg.MaxRetries,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Headers:           headers,
		}),
	}, nil
}

func (c *CrossEncoder) Name() string { return "cross-encoder:" + c.model }

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rankedItem struct {
	Index          int      `json:"index"`
	Score          *float64 `json:"score"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// Score returns one score per passage, in passage order. Both the TEI array
// response and the {"results": [...]} shape are accepted.
func (c *CrossEncoder) Score(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}
	req := rerankRequest{Query: query, Texts: passages, Documents: passages, Model: c.model, RawScores: true, Truncate: true}
	var raw json.RawMessage
	if err := c.http.PostJSON(ctx, c.url, req, &raw); err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}

	var items []rankedItem
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Results []rankedItem `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode rerank response: %w", err)
		}
		items = wrapped.Results
	}

	scores := make([]float64, len(passages))
	seen := make([]bool, len(passages))
	for _, it := range items {
		if it.Index < 0 || it.Index >= len(passages) {
			return nil, fmt.Errorf("rerank response index %d out of range", it.Index)
		}
		switch {
		case it.Score != nil:
			scores[it.Index] = *it.Score
		case it.RelevanceScore != nil:
			scores[it.Index] = *it.RelevanceScore
		default:
			return nil, fmt.Errorf("rerank response item %d has no score", it.Index)
		}
		seen[it.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response missing passage %d", i)
		}
	}
	return scores, nil
}
