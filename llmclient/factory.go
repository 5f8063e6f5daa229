package llmclient

import (
	"context"
	"fmt"

	"order-analyst/config"
	apperrors "order-analyst/errors"
	"order-analyst/metrics"

	"go.uber.org/zap"
)

// NewModel builds the provider named by ep and wraps it with the standard
// middleware stack. The llama.cpp client retries 503s itself, so the retry
// middleware is only added for hosted providers.
func NewModel(ctx context.Context, ep config.Endpoint, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (Model, error) {
	var (
		base  Model
		err   error
		retry = true
	)
	switch ep.Provider {
	case "llamacpp", "":
		base = New(ep, cfg, logger)
		retry = false
	case "openai":
		base, err = NewOpenAIModel(ep, cfg)
	case "anthropic":
		base, err = NewAnthropicModel(ep, cfg)
	case "google":
		base, err = NewGoogleModel(ctx, ep, cfg)
	default:
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "unknown llm provider %q", ep.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s model: %w", ep.Provider, err)
	}

	var mws []Middleware
	mws = append(mws, WithInstrumentation(providerLabel(ep.Provider), m))
	if cfg.LLMRateLimitPerSec > 0 {
		mws = append(mws, WithRateLimit(cfg.LLMRateLimitPerSec, max(cfg.LLMRateLimitBurst, 1)))
	}
	if retry {
		mws = append(mws, WithRetry(cfg.MaxRetries, cfg.RetryDelaySeconds, cfg.LLMBackoffMaxSeconds, cfg.LLMBackoffJitterRatio, logger))
	}
	return Chain(base, mws...), nil
}

// NewEmbedder returns the embedding backend named by ep.
func NewEmbedder(ep config.Endpoint, cfg *config.Config, logger *zap.Logger) (Embedder, error) {
	switch ep.Provider {
	case "llamacpp", "":
		return New(ep, cfg, logger), nil
	case "openai":
		return NewOpenAIModel(ep, cfg)
	default:
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "provider %q has no embedding support", ep.Provider)
	}
}

func providerLabel(p string) string {
	if p == "" {
		return "llamacpp"
	}
	return p
}
