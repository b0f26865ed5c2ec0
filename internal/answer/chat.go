package answer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"edgarqa/internal/httpclient"
)

// ChatConfig configures an OpenAI-compatible chat completions client.
type ChatConfig struct {
	BaseURL           string
	APIKeyEnv         string
	Model             string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// ChatClient answers questions with a chat completions endpoint. Groq,
// OpenAI and local OpenAI-compatible servers all work.
type ChatClient struct {
	url         string
	model       string
	temperature float64
	maxTokens   int
	prompt      *Prompt
	http        *httpclient.Client
}

func NewChatClient(cfg ChatConfig, prompt *Prompt) (*ChatClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = "gemma2-9b-it"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && !isLocal(cfg.BaseURL) {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if prompt == nil {
		var err error
		if prompt, err = DefaultPrompt(); err != nil {
			return nil, err
		}
	}
	headers := map[string]string{}
	if key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	return &ChatClient{
		url:         strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		prompt:      prompt,
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Answer implements domain.Answerer.
func (c *ChatClient) Answer(ctx context.Context, query, context string) (string, error) {
	prompt, err := c.prompt.Render(query, context)
	if err != nil {
		return "", err
	}
	req := chatRequest{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	var resp chatResponse
	if err := c.http.PostJSON(ctx, c.url, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
