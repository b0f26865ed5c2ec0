// Package filing fetches raw EDGAR-CORPUS records and caches processed chunk
// bundles.
package filing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"edgarqa/internal/domain"
	"edgarqa/internal/httpclient"
	"edgarqa/internal/logger"
)

const (
	DefaultBaseURL = "https://datasets-server.huggingface.co"
	DefaultDataset = "eloukas/edgar-corpus"
	DefaultDataDir = "data"
)

// Dir returns the directory holding the records of one year and split.
func Dir(dataDir string, id domain.Identity) string {
	return filepath.Join(dataDir, fmt.Sprintf("edgar_corpus_%d", id.FiscalYear), string(id.Split))
}

// RecordPath is where the raw record of id is cached.
func RecordPath(dataDir string, id domain.Identity) string {
	return filepath.Join(Dir(dataDir, id), fmt.Sprintf("%s_%d.json", id.CompanyID, id.FiscalYear))
}

// HubSplit maps a dataset split to the name the Hugging Face hub uses.
func HubSplit(s domain.Split) string {
	if s == domain.SplitValidate {
		return "validation"
	}
	return string(s)
}

type HFConfig struct {
	BaseURL  string
	Dataset  string
	DataDir  string
	TokenEnv string
	Timeout  time.Duration
}

// HFSource reads filings from the local cache, falling back to the Hugging
// Face datasets-server and caching what it downloads.
type HFSource struct {
	baseURL string
	dataset string
	dataDir string
	http    *httpclient.Client
}

func NewHFSource(cfg HFConfig) *HFSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	headers := map[string]string{}
	if cfg.TokenEnv != "" {
		if tok := os.Getenv(cfg.TokenEnv); tok != "" {
			headers["Authorization"] = "Bearer " + tok
		}
	}
	return &HFSource{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		dataset: cfg.Dataset,
		dataDir: cfg.DataDir,
		http:    httpclient.New(httpclient.Options{Timeout: cfg.Timeout, MaxRetries: 3, Headers: headers}),
	}
}

type filterResponse struct {
	Rows []struct {
		Row domain.RawFiling `json:"row"`
	} `json:"rows"`
}

// Fetch implements domain.FilingSource. A missing record is reported as
// found=false without error.
func (s *HFSource) Fetch(ctx context.Context, id domain.Identity) (domain.RawFiling, bool, error) {
	if err := id.Validate(); err != nil {
		return nil, false, err
	}
	path := RecordPath(s.dataDir, id)
	raw, err := readRecord(path)
	if err == nil {
		logger.Debug(ctx, "filing record cache hit", "path", path)
		return raw, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	q := url.Values{}
	q.Set("dataset", s.dataset)
	q.Set("config", "year_"+strconv.Itoa(id.FiscalYear))
	q.Set("split", HubSplit(id.Split))
	q.Set("where", fmt.Sprintf(`"cik"='%s'`, strings.ReplaceAll(id.CompanyID, "'", "''")))
	q.Set("offset", "0")
	q.Set("length", "1")

	var resp filterResponse
	if err := s.http.GetJSON(ctx, s.baseURL+"/filter?"+q.Encode(), &resp); err != nil {
		return nil, false, fmt.Errorf("fetch filing %s: %w", id, err)
	}
	if len(resp.Rows) == 0 {
		logger.Info(ctx, "no filing record found", "dataset", s.dataset)
		return nil, false, nil
	}
	raw = resp.Rows[0].Row
	if err := writeJSON(path, raw); err != nil {
		logger.Warn(ctx, "failed to cache filing record", "path", path, "error", err.Error())
	}
	return raw, true, nil
}

// DirSource serves filings from a data directory only.
type DirSource struct {
	DataDir string
}

func (s DirSource) Fetch(_ context.Context, id domain.Identity) (domain.RawFiling, bool, error) {
	raw, err := readRecord(RecordPath(s.DataDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func readRecord(path string) (domain.RawFiling, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw domain.RawFiling
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw, nil
}

// writeJSON writes v atomically, creating parent directories.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
