package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"edgarqa/internal/answer"
	"edgarqa/internal/chunker"
	"edgarqa/internal/config"
	"edgarqa/internal/domain"
	"edgarqa/internal/embedding/hashing"
	"edgarqa/internal/embedding/openai"
	"edgarqa/internal/filing"
	"edgarqa/internal/metrics"
	"edgarqa/internal/rerank"
	"edgarqa/internal/retrieval"
	"edgarqa/internal/service"
	"edgarqa/internal/summarizer"
	"edgarqa/internal/vectorstore"
	"edgarqa/internal/vectorstore/memory"
	"edgarqa/internal/vectorstore/milvus"
	"edgarqa/internal/vectorstore/qdrant"
)

// App holds the assembled pipeline. Close releases backend connections.
type App struct {
	Service  *service.RAGService
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	closers []func() error
}

func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Build assembles every component named by cfg.
func Build(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app := &App{Metrics: metrics.New(reg), Registry: reg}

	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	method, err := chunker.ParseMethod(cfg.Chunker.Method)
	if err != nil {
		return nil, err
	}
	tok, err := chunker.NewTokenizer(cfg.Tokenizer.Name)
	if err != nil {
		return nil, fmt.Errorf("tokenizer %q: %w", cfg.Tokenizer.Name, err)
	}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	store, err := app.buildVectorStore(ctx, cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	gw := vectorstore.NewGateway(store, vectorstore.Options{
		BatchSize: cfg.VectorStore.BatchSize,
		Timeout:   config.Seconds(cfg.VectorStore.TimeoutSecs),
		Recorder:  app.Metrics,
	})
	scorer, err := buildScorer(cfg.Reranker)
	if err != nil {
		return nil, err
	}
	answerer, err := buildAnswerer(cfg.LLM)
	if err != nil {
		return nil, err
	}
	source, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	bundles, err := app.buildBundleStore(cfg)
	if err != nil {
		return nil, err
	}

	app.Service = service.NewRAGService(service.Deps{
		Source:    source,
		Bundles:   bundles,
		Processor: chunker.NewProcessor(chunker.NewSegmenter(tok), chunker.WithRecorder(app.Metrics)),
		Embedder:  emb,
		Gateway:   gw,
		Retriever: retrieval.New(emb, gw, rerank.New(scorer, config.Seconds(cfg.Reranker.TimeoutSecs)), retrieval.Options{
			Namespace:  cfg.VectorStore.Namespace,
			Candidates: cfg.Retrieval.Candidates,
			TopN:       cfg.Retrieval.TopN,
			Recorder:   app.Metrics,
		}),
		Generator:  answer.NewGenerator(answerer, config.Seconds(cfg.LLM.TimeoutSecs), app.Metrics),
		Summarizer: summarizer.NewFrequencySummarizer(cfg.Summarizer.MaxSentences),
	}, service.Options{
		Namespace: cfg.VectorStore.Namespace,
		Method:    method,
		Chunker:   cfg.Chunker.Config,
	})
	ok = true
	return app, nil
}

func buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKeyEnv:         cfg.OpenAI.APIKeyEnv,
			Model:             cfg.OpenAI.Model,
			Dimension:         cfg.OpenAI.Dimension,
			BatchSize:         cfg.OpenAI.BatchSize,
			Timeout:           config.Seconds(cfg.OpenAI.TimeoutSecs),
			MaxRetries:        cfg.OpenAI.MaxRetries,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		})
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func (a *App) buildVectorStore(ctx context.Context, cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory", "":
		if cfg.Memory != nil && cfg.Memory.Path != "" {
			return memory.Open(cfg.Memory.Path)
		}
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     env(cfg.Qdrant.APIKeyEnv),
			Collection: cfg.Qdrant.Collection,
			Timeout:    config.Seconds(cfg.Qdrant.TimeoutSecs),
		}), nil
	case "milvus":
		if cfg.Milvus == nil {
			return nil, fmt.Errorf("milvus config missing")
		}
		st, err := milvus.NewStorage(ctx, milvus.Config{
			Address:            cfg.Milvus.Address,
			Username:           cfg.Milvus.Username,
			Password:           env(cfg.Milvus.PasswordEnv),
			Collection:         cfg.Milvus.Collection,
			HNSWM:              cfg.Milvus.HNSWM,
			HNSWEfConstruction: cfg.Milvus.HNSWEf,
			SearchEf:           cfg.Milvus.SearchEf,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, st.Close)
		return st, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

func buildScorer(cfg config.RerankerConfig) (domain.Scorer, error) {
	switch cfg.Type {
	case "lexical", "":
		return rerank.LexicalScorer{}, nil
	case "cross-encoder", "cross_encoder":
		if cfg.CrossEncoder == nil {
			return nil, fmt.Errorf("cross_encoder config missing")
		}
		return rerank.NewCrossEncoder(rerank.CrossEncoderConfig{
			BaseURL:   cfg.CrossEncoder.BaseURL,
			Model:     cfg.CrossEncoder.Model,
			APIKeyEnv: cfg.CrossEncoder.APIKeyEnv,
			Timeout:   config.Seconds(cfg.TimeoutSecs),
		})
	}
	return nil, fmt.Errorf("unknown reranker: %s", cfg.Type)
}

func buildAnswerer(cfg config.LLMConfig) (domain.Answerer, error) {
	switch cfg.Type {
	case "extractive", "":
		return answer.Extractive{}, nil
	case "chat":
		prompt, err := answer.DefaultPrompt()
		if err != nil {
			return nil, err
		}
		return answer.NewChatClient(answer.ChatConfig{
			BaseURL:     cfg.BaseURL,
			APIKeyEnv:   cfg.APIKeyEnv,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     config.Seconds(cfg.TimeoutSecs),
		}, prompt)
	}
	return nil, fmt.Errorf("unknown llm: %s", cfg.Type)
}

func buildSource(cfg *config.AppConfig) (domain.FilingSource, error) {
	switch cfg.FilingSource.Type {
	case "huggingface", "":
		return filing.NewHFSource(filing.HFConfig{
			BaseURL:  cfg.FilingSource.BaseURL,
			Dataset:  cfg.FilingSource.Dataset,
			DataDir:  cfg.Data.Dir,
			TokenEnv: cfg.FilingSource.TokenEnv,
		}), nil
	case "dir":
		return filing.DirSource{DataDir: cfg.Data.Dir}, nil
	}
	return nil, fmt.Errorf("unknown filing source: %s", cfg.FilingSource.Type)
}

func (a *App) buildBundleStore(cfg *config.AppConfig) (domain.BundleStore, error) {
	switch cfg.BundleStore.Type {
	case "file", "":
		return filing.FileBundleStore{DataDir: cfg.Data.Dir}, nil
	case "redis":
		rc := cfg.BundleStore.Redis
		if rc == nil {
			return nil, fmt.Errorf("redis config missing")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr,
			Password: env(rc.PasswordEnv),
			DB:       rc.DB,
		})
		a.closers = append(a.closers, client.Close)
		return filing.NewRedisBundleStore(client, rc.KeyPrefix, time.Duration(rc.TTLHours)*time.Hour), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown bundle store: %s", cfg.BundleStore.Type)
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
