package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"edgarqa/internal/domain"
)

// pointNamespace seeds the name-based UUIDs derived from chunk ids; Qdrant
// only accepts integers and UUIDs as point ids.
var pointNamespace = uuid.MustParse("8d3f6a52-4b1e-4c1a-9b0e-6f2e1d7c5a90")

// Storage is a minimal REST client to Qdrant. It assumes cosine distance and
// creates the collection if missing. Namespaces are a filtered payload field.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "edgar_filings"
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a chunk id to its Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

var payloadIndexes = map[string]string{
	"namespace":     "keyword",
	"company_id":    "keyword",
	"fiscal_year":   "integer",
	"dataset_split": "keyword",
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	collectionURL := fmt.Sprintf("%s/collections/%s", s.url, s.collection)

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.doJSON(ctx, http.MethodGet, collectionURL, nil, &info)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusOK {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("qdrant collection %s has dimension %d, want %d", s.collection, size, dimension)
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.doJSON(ctx, http.MethodPut, collectionURL, body, nil); err != nil {
		return err
	}
	for field, schema := range payloadIndexes {
		idx := map[string]any{"field_name": field, "field_schema": schema}
		if _, err := s.doJSON(ctx, http.MethodPut, collectionURL+"/index?wait=true", idx, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", field, err)
		}
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, namespace string, vectors []domain.IndexedVector) error {
	points := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		points[i] = map[string]any{
			"id":      PointID(v.ID),
			"vector":  v.Embedding,
			"payload": payload(namespace, v),
		}
	}
	body := map[string]any{"points": points}
	_, err := s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
	return err
}

func payload(namespace string, v domain.IndexedVector) map[string]any {
	m := v.Metadata
	return map[string]any{
		"namespace":     namespace,
		"chunk_id":      v.ID,
		"company_id":    m.CompanyID,
		"fiscal_year":   m.FiscalYear,
		"dataset_split": string(m.Split),
		"section":       m.Section,
		"item_number":   m.ItemNumber,
		"item_name":     m.ItemName,
		"chunk_index":   m.ChunkIndex,
		"content":       m.Content,
		"embedder":      m.Embedder,
	}
}

func (s *Storage) Query(ctx context.Context, namespace string, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       BuildFilter(namespace, filter),
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ChunkID string `json:"chunk_id"`
				domain.VectorMetadata
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.Match{ID: r.Payload.ChunkID, Score: r.Score, Metadata: r.Payload.VectorMetadata})
	}
	return results, nil
}

// Exists counts points matching the filter without a similarity search.
func (s *Storage) Exists(ctx context.Context, namespace string, filter domain.Filter) (bool, error) {
	req := map[string]any{"filter": BuildFilter(namespace, filter), "exact": true}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if _, err := s.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection), req, &resp); err != nil {
		return false, err
	}
	return resp.Result.Count > 0, nil
}

// BuildFilter renders the namespace and identity constraints as a Qdrant
// filter; unset identity fields add no condition.
func BuildFilter(namespace string, f domain.Filter) map[string]any {
	match := func(key string, value any) map[string]any {
		return map[string]any{"key": key, "match": map[string]any{"value": value}}
	}
	must := []map[string]any{match("namespace", namespace)}
	if f.CompanyID != "" {
		must = append(must, match("company_id", f.CompanyID))
	}
	if f.FiscalYear != 0 {
		must = append(must, match("fiscal_year", f.FiscalYear))
	}
	if f.Split != "" {
		must = append(must, match("dataset_split", string(f.Split)))
	}
	return map[string]any{"must": must}
}

// doJSON sends body and decodes the response into out. It returns the HTTP
// status alongside any error so callers can treat 404 specially.
func (s *Storage) doJSON(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decode: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}
