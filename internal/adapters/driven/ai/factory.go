// Package ai constructs the remote embedding backend.
package ai

import (
	"context"
	"fmt"
	"os"
	"time"

	openaiembed "github.com/custodia-labs/evidence-bench/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/evidence-bench/internal/core/domain"
	"github.com/custodia-labs/evidence-bench/internal/core/ports/driven"
	"github.com/custodia-labs/evidence-bench/internal/logger"
	"github.com/custodia-labs/evidence-bench/internal/observability"
	"github.com/custodia-labs/evidence-bench/internal/retry"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// MissingKeyReason is reported when no API key is configured.
const MissingKeyReason = openaiembed.APIKeyEnv + " is not set."

// Options tune backend construction.
type Options struct {
	// APIKey overrides the OPENAI_API_KEY environment variable.
	APIKey string

	// Ping validates connectivity before the backend is reported available.
	Ping bool

	// Metrics is optional.
	Metrics *observability.Metrics
}

// CreateEmbeddingService builds the OpenAI embedding service from settings.
func CreateEmbeddingService(settings domain.EmbeddingSettings, opts Options) (driven.EmbeddingService, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(openaiembed.APIKeyEnv)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingCredential, MissingKeyReason)
	}

	retryCfg := retry.DefaultConfig()
	if settings.MaxAttempts > 0 {
		retryCfg.MaxAttempts = settings.MaxAttempts
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            apiKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Timeout:           settings.Timeout,
		RequestsPerSecond: settings.RequestsPerSecond,
		Retry:             retryCfg,
		Metrics:           opts.Metrics,
	})
}

// ProbeEmbeddingBackend constructs the embedding service once. Failure is
// not an error: the returned backend carries the reason instead, so callers
// can degrade rather than abort.
func ProbeEmbeddingBackend(ctx context.Context, settings domain.EmbeddingSettings, opts Options) driven.EmbeddingBackend {
	svc, err := CreateEmbeddingService(settings, opts)
	if err != nil {
		if opts.APIKey == "" && os.Getenv(openaiembed.APIKeyEnv) == "" {
			logger.Debug("ai: %s", MissingKeyReason)
			return driven.UnavailableBackend(MissingKeyReason)
		}
		logger.Debug("ai: embedding service construction failed: %v", err)
		return driven.UnavailableBackend(fmt.Sprintf("Failed to initialize embedding client: %v", err))
	}

	if opts.Ping {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := svc.Ping(pingCtx); err != nil {
			svc.Close() //nolint:errcheck
			logger.Debug("ai: embedding service ping failed: %v", err)
			return driven.UnavailableBackend(fmt.Sprintf("Embedding service unreachable: %v", err))
		}
	}

	logger.Debug("ai: embedding backend ready (model %s)", svc.ModelName())
	return driven.AvailableBackend(svc)
}
