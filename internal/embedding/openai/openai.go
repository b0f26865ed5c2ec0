// Package openai is an embeddings client for OpenAI-compatible endpoints,
// including Ollama.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"edgarqa/internal/httpclient"
)

// Client implements domain.Embedder over the /embeddings endpoint.
type Client struct {
	baseURL   string
	model     string
	dimension int
	batchSize int
	timeout   time.Duration
	http      *httpclient.Client
}

// Config configures the embeddings client.
type Config struct {
	BaseURL           string
	APIKeyEnv         string
	Model             string
	Dimension         int
	BatchSize         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// NewClient creates an embeddings client. The API key is read from the
// environment variable named by cfg.APIKeyEnv; local servers may omit it.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	headers := map[string]string{}
	if cfg.APIKeyEnv != "" {
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" && !isLocal(cfg.BaseURL) {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
		if key != "" {
			headers["Authorization"] = "Bearer " + key
		}
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		timeout:   cfg.Timeout,
		http: httpclient.New(httpclient.Options{
			Timeout:           cfg.Timeout,
			MaxRetries:        cfg.MaxRetries,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Headers:           headers,
		}),
	}, nil
}

func isLocal(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}

// Name identifies the embedding space; vectors from different models never mix.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the configured dimension, or the one learned from the
// first response when none was configured.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns one vector per text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embedRequest struct {
	Input any    `json:"input"`
	Model string `json:"model"`
}

// embedResponse accepts the OpenAI shape and the Ollama /api/embed shapes.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Embeddings [][]float64 `json:"embeddings"`
	Embedding  []float64   `json:"embedding"`
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var resp embedResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/embeddings", embedRequest{Input: texts, Model: c.model}, &resp); err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	var raw [][]float64
	switch {
	case len(resp.Data) > 0:
		sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
		for _, d := range resp.Data {
			raw = append(raw, d.Embedding)
		}
	case len(resp.Embeddings) > 0:
		raw = resp.Embeddings
	case len(resp.Embedding) > 0:
		raw = [][]float64{resp.Embedding}
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(raw), len(texts))
	}

	out := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) == 0 {
			return nil, errors.New("openai embeddings: empty vector returned")
		}
		if c.dimension == 0 {
			c.dimension = len(v)
		}
		if len(v) != c.dimension {
			return nil, fmt.Errorf("openai embeddings: dimension %d, want %d", len(v), c.dimension)
		}
		vec := make([]float32, len(v))
		for j, x := range v {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}
