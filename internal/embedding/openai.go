package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIEmbedder generates embeddings via the OpenAI API, for installations
// without a local Ollama. Same protections as the Ollama path: circuit
// breaker plus a rate limiter tuned to stay under API quota during bursts.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	breaker *Breaker
	limiter *rate.Limiter
}

// OpenAIConfig holds OpenAI embedder configuration.
type OpenAIConfig struct {
	// APIKey authenticates against the OpenAI API. Required.
	APIKey string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL string

	// RequestsPerSecond caps the call rate (default: 5, burst 10).
	RequestsPerSecond float64
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig, logger zerolog.Logger) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		breaker: NewBreaker("openai-embed", BreakerConfig{}, logger),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 10),
	}, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// Embed generates an embedding for the text, truncated to MaxEmbedChars.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return e.breaker.Execute(ctx, func() ([]float64, error) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{Truncate(text)},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding request failed: %w", err)
		}
		if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("openai returned empty embedding vector")
		}

		vector := make([]float64, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vector[i] = float64(v)
		}
		return vector, nil
	})
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.model
}
