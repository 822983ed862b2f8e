package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// OllamaEmbedder generates embeddings via a local Ollama instance. All HTTP
// calls are wrapped with circuit breaker protection, and a token-bucket rate
// limiter keeps bulk ingestion (webhook bursts, transcript imports) from
// saturating the local model server.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *Breaker
	limiter *rate.Limiter
	timeout time.Duration
}

// OllamaConfig holds Ollama embedder configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model name (default: nomic-embed-text).
	Model string

	// Timeout is the per-request timeout (default: 10s).
	Timeout time.Duration

	// RequestsPerSecond caps the call rate (default: 10, burst 5).
	RequestsPerSecond float64
}

// embedRequest is the body for the /api/embed endpoint.
type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embedResponse is the /api/embed response. The embeddings field is a 2D
// array; we always use the first (and only) embedding.
type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedder, applying defaults for any
// zero config fields.
func NewOllamaEmbedder(cfg OllamaConfig, logger zerolog.Logger) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 10
	}

	return &OllamaEmbedder{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewBreaker("ollama-embed", BreakerConfig{}, logger),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 5),
		timeout: cfg.Timeout,
	}
}

var _ Embedder = (*OllamaEmbedder)(nil)

// Embed generates an embedding for the text, truncated to MaxEmbedChars.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	return e.breaker.Execute(ctx, func() ([]float64, error) {
		return e.embed(ctx, Truncate(text))
	})
}

// embed is the internal implementation without circuit breaker wrapping.
func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	jsonData, err := json.Marshal(embedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}

	return respData.Embeddings[0], nil
}

// Model returns the configured model name.
func (e *OllamaEmbedder) Model() string {
	return e.model
}

// HealthCheck verifies Ollama is reachable via /api/version. It bypasses
// the circuit breaker since it is itself a health probe.
func (e *OllamaEmbedder) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/version", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
