// Package openai provides an embedding service adapter for the OpenAI API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
	"github.com/custodia-labs/evidence-bench/internal/retry"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// APIKeyEnv is the environment variable holding the API key.
const APIKeyEnv = "OPENAI_API_KEY"

// Default configuration values.
const (
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Timeout bounds a single HTTP request (default: 60s).
	Timeout time.Duration

	// RequestsPerSecond paces requests. Zero means unpaced.
	RequestsPerSecond float64

	// Retry controls retries of transient failures.
	Retry retry.Config

	// Metrics is optional.
	Metrics *observability.Metrics
}

// EmbeddingService generates embeddings through the OpenAI API.
type EmbeddingService struct {
	client     *openai.Client
	model      string
	dimensions int
	limiter    *RateLimiter
	retry      retry.Config
	metrics    *observability.Metrics
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s is not set", domain.ErrMissingCredential, APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	dimensions, ok := modelDimensions[cfg.Model]
	if !ok {
		dimensions = 1536
	}

	s := &EmbeddingService{
		client:     openai.NewClientWithConfig(config),
		model:      cfg.Model,
		dimensions: dimensions,
		limiter:    NewRateLimiter(cfg.RequestsPerSecond),
		retry:      cfg.Retry,
		metrics:    cfg.Metrics,
	}
	userHook := s.retry.OnRetry
	s.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("openai: embedding attempt %d failed, retrying in %s: %v", attempt, delay.Round(time.Millisecond), err)
		s.metrics.EmbeddingRetry(s.model)
		if userHook != nil {
			userHook(attempt, err, delay)
		}
	}
	return s, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbeddingFailed)
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
// The result is index-aligned with texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings, result := retry.DoWithValue(ctx, s.retry, func() ([][]float32, error) {
		return s.embedOnce(ctx, texts)
	})
	if result.Err != nil {
		var permanent *retry.PermanentError
		err := result.Err
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailed, err)
	}
	return embeddings, nil
}

func (s *EmbeddingService) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	start := time.Now()
	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(s.model),
	})
	s.metrics.EmbeddingRequest(s.model, err, time.Since(start))
	if err != nil {
		return nil, s.classify(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("openai: got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) || embeddings[data.Index] != nil {
			return nil, retry.Permanent(fmt.Errorf("openai: unexpected embedding index %d", data.Index))
		}
		embeddings[data.Index] = data.Embedding
	}
	logger.Debug("openai: embedded %d texts with %s in %s", len(texts), s.model, time.Since(start).Round(time.Millisecond))
	return embeddings, nil
}

// classify marks client errors other than 408 and 429 as permanent.
func (s *EmbeddingService) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Permanent(err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		s.limiter.RecordRateLimitError(s.retry.InitialDelay)
		return err
	case status == http.StatusRequestTimeout, status >= 500, status == 0:
		return err
	default:
		return retry.Permanent(err)
	}
}

// Dimensions returns the expected embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping validates the API key by listing models. No inference is run.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
