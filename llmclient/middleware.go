package llmclient

import (
	"context"
	"fmt"
	"time"

	"order-analyst/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const tracerName = "order-analyst/llmclient"

// WithRetry retries failed completions with exponential backoff. Context
// errors stop the loop immediately.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration, jitterRatio float64, logger *zap.Logger) Middleware {
	return func(next Model) Model {
		return ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
			var lastErr error
			for attempt := 0; attempt <= maxRetries; attempt++ {
				out, err := next.Complete(ctx, req)
				if err == nil {
					return out, nil
				}
				lastErr = err
				if ctx.Err() != nil || err == ErrContextWindowExceeded || attempt == maxRetries {
					break
				}
				logger.Warn("LLM request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoffDelay(baseDelay, maxDelay, jitterRatio, attempt)):
				}
			}
			return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
		})
	}
}

// WithRateLimit paces requests with a token bucket shared by every model the
// middleware wraps.
func WithRateLimit(perSecond float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next Model) Model {
		return ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
			return next.Complete(ctx, req)
		})
	}
}

// WithInstrumentation records a span, prometheus metrics and the context
// token accumulator for every completion.
func WithInstrumentation(provider string, m *metrics.Metrics) Middleware {
	tracer := otel.Tracer(tracerName)
	return func(next Model) Model {
		return ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
			ctx, span := tracer.Start(ctx, "llm.complete", trace.WithAttributes(
				attribute.String("llm.provider", provider),
				attribute.Int("llm.messages", len(req.Messages)),
			))
			defer span.End()

			start := time.Now()
			out, err := next.Complete(ctx, req)
			var in, outTokens int
			if out != nil {
				in, outTokens = out.TokensIn, out.TokensOut
			}
			m.ObserveLLMRequest(provider, time.Since(start), err, in, outTokens)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, err
			}
			span.SetAttributes(
				attribute.Int("llm.tokens.input", in),
				attribute.Int("llm.tokens.output", outTokens),
			)
			if u := UsageFrom(ctx); u != nil {
				u.add(in, outTokens)
			}
			return out, nil
		})
	}
}
