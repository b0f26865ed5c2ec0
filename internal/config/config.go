package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"edgarqa/internal/chunker"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DataConfig locates cached filing records and chunk bundles.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkerConfig selects the segmentation method and its parameters.
type ChunkerConfig struct {
	Method         string `yaml:"method"`
	chunker.Config `yaml:",inline"`
}

// TokenizerConfig selects the token-window tokenizer: "gpt2", "word" or a
// tiktoken encoding name.
type TokenizerConfig struct {
	Name string `yaml:"name"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	Dimension         int     `yaml:"dimension"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size"`
	MaxRetries        int     `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// HashingEmbedderConfig configures the offline hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type        string        `yaml:"type"`
	Namespace   string        `yaml:"namespace"`
	BatchSize   int           `yaml:"batch_size"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Memory      *MemoryConfig `yaml:"memory,omitempty"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
	Milvus      *MilvusConfig `yaml:"milvus,omitempty"`
}

// MemoryConfig optionally persists the in-memory store to a JSON snapshot.
type MemoryConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// MilvusConfig contains connection details for a Milvus vector store.
type MilvusConfig struct {
	Address     string `yaml:"address"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	Collection  string `yaml:"collection"`
	HNSWM       int    `yaml:"hnsw_m"`
	HNSWEf      int    `yaml:"hnsw_ef_construction"`
	SearchEf    int    `yaml:"search_ef"`
}

// RerankerConfig selects the relevance scorer.
type RerankerConfig struct {
	Type         string              `yaml:"type"`
	TimeoutSecs  int                 `yaml:"timeout_secs"`
	CrossEncoder *CrossEncoderConfig `yaml:"cross_encoder,omitempty"`
}

// CrossEncoderConfig points at a /rerank endpoint.
type CrossEncoderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// RetrievalConfig sets how many candidates are fetched and kept.
type RetrievalConfig struct {
	Candidates int `yaml:"candidates"`
	TopN       int `yaml:"top_n"`
}

// LLMConfig configures answer generation. Type "extractive" needs no model.
type LLMConfig struct {
	Type        string  `yaml:"type"`
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// FilingSourceConfig configures the EDGAR-CORPUS download.
type FilingSourceConfig struct {
	Type     string `yaml:"type"`
	BaseURL  string `yaml:"base_url"`
	Dataset  string `yaml:"dataset"`
	TokenEnv string `yaml:"token_env"`
}

// BundleStoreConfig selects where chunk bundles are cached.
type BundleStoreConfig struct {
	Type  string       `yaml:"type"`
	Redis *RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains connection details for the Redis bundle store.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
	TTLHours    int    `yaml:"ttl_hours"`
}

// SummarizerConfig configures the filing overview.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log          LogConfig          `yaml:"log"`
	Data         DataConfig         `yaml:"data"`
	Chunker      ChunkerConfig      `yaml:"chunker"`
	Tokenizer    TokenizerConfig    `yaml:"tokenizer"`
	Embedder     EmbedderConfig     `yaml:"embedder"`
	VectorStore  VectorStoreConfig  `yaml:"vector_store"`
	Reranker     RerankerConfig     `yaml:"reranker"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	LLM          LLMConfig          `yaml:"llm"`
	FilingSource FilingSourceConfig `yaml:"filing_source"`
	BundleStore  BundleStoreConfig  `yaml:"bundle_store"`
	Summarizer   SummarizerConfig   `yaml:"summarizer"`
	Server       ServerConfig       `yaml:"server"`
}

// Seconds converts a *_secs setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/edgarqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/edgarqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "edgarqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Log:          LogConfig{Level: "info", Format: "text"},
		Data:         DataConfig{Dir: "data"},
		Chunker:      ChunkerConfig{Method: string(chunker.MethodFixedWindow), Config: chunker.DefaultConfig()},
		Tokenizer:    TokenizerConfig{Name: "gpt2"},
		Embedder:     EmbedderConfig{Type: "hashing"},
		VectorStore:  VectorStoreConfig{Type: "memory"},
		Reranker:     RerankerConfig{Type: "lexical"},
		LLM:          LLMConfig{Type: "extractive"},
		FilingSource: FilingSourceConfig{Type: "huggingface"},
		BundleStore:  BundleStoreConfig{Type: "file"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Chunker.Method == "" {
		cfg.Chunker.Method = string(chunker.MethodFixedWindow)
	}
	cfg.Chunker.Config = cfg.Chunker.Config.WithDefaults()
	if cfg.Tokenizer.Name == "" {
		cfg.Tokenizer.Name = "gpt2"
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 64
		}
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Namespace == "" {
		cfg.VectorStore.Namespace = "edgar"
	}
	if cfg.VectorStore.BatchSize == 0 {
		cfg.VectorStore.BatchSize = 10
	}
	if cfg.VectorStore.TimeoutSecs == 0 {
		cfg.VectorStore.TimeoutSecs = 30
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "edgar_filings"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 30
		}
	}
	if m := cfg.VectorStore.Milvus; m != nil {
		if m.Address == "" {
			m.Address = "localhost:19530"
		}
		if m.Collection == "" {
			m.Collection = "edgar_filings"
		}
	}

	if cfg.Reranker.Type == "" {
		cfg.Reranker.Type = "lexical"
	}
	if cfg.Reranker.TimeoutSecs == 0 {
		cfg.Reranker.TimeoutSecs = 30
	}
	if cfg.Retrieval.Candidates == 0 {
		cfg.Retrieval.Candidates = 10
	}
	if cfg.Retrieval.TopN == 0 {
		cfg.Retrieval.TopN = 5
	}

	if cfg.LLM.Type == "" {
		cfg.LLM.Type = "extractive"
	}
	if cfg.LLM.Type == "chat" {
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
		}
		if cfg.LLM.APIKeyEnv == "" {
			cfg.LLM.APIKeyEnv = "GROQ_API_KEY"
		}
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gemma2-9b-it"
		}
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.FilingSource.Type == "" {
		cfg.FilingSource.Type = "huggingface"
	}
	if cfg.BundleStore.Type == "" {
		cfg.BundleStore.Type = "file"
	}
	if r := cfg.BundleStore.Redis; r != nil && r.Addr == "" {
		r.Addr = "localhost:6379"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 5
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
}
