package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"order-analyst/config"
	apperrors "order-analyst/errors"

	"go.uber.org/zap"
)

// ErrContextWindowExceeded is returned when the model reports the prompt
// exceeds the available context size.
var ErrContextWindowExceeded = apperrors.New("context window exceeded")

type chatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Stop        []string  `json:"stop,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Embedding request/response mirror llama.cpp's expected schema
type embeddingRequest struct {
	Content string `json:"content"`
}

type embeddingResponse []struct {
	Embedding [][]float32 `json:"embedding"`
}

// Client talks to a llama.cpp compatible server over plain HTTP.
type Client struct {
	host       string
	model      string
	apiKey     string
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

func New(ep config.Endpoint, cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		host:       strings.TrimRight(ep.Host, "/"),
		model:      ep.Model,
		apiKey:     ep.APIKey,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.LLMRequestTimeout},
		logger:     logger,
	}
}

// Complete performs a non-streaming chat completion call.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Stop:        req.Stop,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	bodyBytes, err := c.post(ctx, c.host+"/v1/chat/completions", jsonBody)
	if err != nil {
		return nil, err
	}

	var cr chatResponse
	if err := json.Unmarshal(bodyBytes, &cr); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, apperrors.WrapError(apperrors.ErrLLMCommunication, "no response choices from llm server")
	}
	out := &Completion{
		Content:   cr.Choices[0].Message.Content,
		TokensIn:  cr.Usage.PromptTokens,
		TokensOut: cr.Usage.CompletionTokens,
	}
	if out.TokensIn == 0 && out.TokensOut == 0 {
		var prompt strings.Builder
		for _, m := range req.Messages {
			prompt.WriteString(m.Content)
			prompt.WriteByte('\n')
		}
		out.TokensIn = c.countTokens(ctx, prompt.String())
		out.TokensOut = c.countTokens(ctx, out.Content)
	}
	return out, nil
}

// Embed generates an embedding vector for the provided document using the
// llama.cpp-compatible embeddings endpoint.
func (c *Client) Embed(ctx context.Context, doc string) ([]float32, error) {
	jsonBody, err := json.Marshal(embeddingRequest{Content: doc})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	bodyBytes, err := c.post(ctx, c.host+"/v1/embeddings", jsonBody)
	if err != nil {
		return nil, err
	}

	var er embeddingResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(er) == 0 || len(er[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return er[0].Embedding[0], nil
}

// post sends body to url, retrying while the server reports the model is
// still loading.
func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	var resp *http.Response
	var lastErr error
	attempts := c.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		r, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			// Do not retry on context cancellation/deadline
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if r.StatusCode == http.StatusServiceUnavailable {
			// Model loading; retry with backoff
			io.Copy(io.Discard, r.Body)
			r.Body.Close()
			lastErr = fmt.Errorf("llm server status %s", r.Status)
			c.logger.Warn("LLM service unavailable, retrying", zap.String("url", url), zap.Int("attempt", attempt+1))
			if err := c.backoffSleep(ctx, attempt); err != nil {
				return nil, err
			}
			continue
		}
		resp = r
		break
	}
	if resp == nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "no response from %s: %v", url, lastErr)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if strings.Contains(string(bodyBytes), "exceeds the available context size") {
			return nil, ErrContextWindowExceeded
		}
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "llm server status %s: %s", resp.Status, string(bodyBytes))
	}
	return bodyBytes, nil
}

func (c *Client) backoffSleep(ctx context.Context, attempt int) error {
	d := backoffDelay(c.cfg.RetryDelaySeconds, c.cfg.LLMBackoffMaxSeconds, c.cfg.LLMBackoffJitterRatio, attempt)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// backoffDelay is exponential backoff with a cap and symmetric jitter.
func backoffDelay(base, maxWait time.Duration, jitterRatio float64, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second // config normalization should prevent this
	}
	d := base * time.Duration(1<<attempt)
	if maxWait > 0 && d > maxWait {
		d = maxWait
	}
	if jitterRatio < 0 || jitterRatio > 1 {
		jitterRatio = 0.1
	}
	jitter := time.Duration(float64(d) * jitterRatio)
	return d - jitter + time.Duration(time.Now().UnixNano()%int64(2*jitter+1))
}
