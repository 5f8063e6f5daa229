package llmclient

import (
	"context"
	"sync"
)

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral chat request. Temperature is optional; nil
// leaves the provider default in place.
type Request struct {
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	Stop        []string
}

type Completion struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// Model is a chat model.
type Model interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (*Completion, error)

func (f ModelFunc) Complete(ctx context.Context, req Request) (*Completion, error) {
	return f(ctx, req)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Middleware decorates a Model.
type Middleware func(Model) Model

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(m Model, mws ...Middleware) Model {
	for i := len(mws) - 1; i >= 0; i-- {
		m = mws[i](m)
	}
	return m
}

// Temperature returns a pointer for Request.Temperature.
func Temperature(t float64) *float64 { return &t }

// Prompt builds a single-turn request with an optional system message.
func Prompt(system, user string) Request {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})
	return Request{Messages: msgs}
}

// Usage accumulates token counts for every completion made under a context
// returned by WithUsage.
type Usage struct {
	mu        sync.Mutex
	tokensIn  int
	tokensOut int
}

func (u *Usage) add(in, out int) {
	u.mu.Lock()
	u.tokensIn += in
	u.tokensOut += out
	u.mu.Unlock()
}

func (u *Usage) Total() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokensIn + u.tokensOut
}

func (u *Usage) Split() (in, out int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.tokensIn, u.tokensOut
}

type usageKey struct{}

// WithUsage attaches a fresh accumulator to ctx.
func WithUsage(ctx context.Context) (context.Context, *Usage) {
	u := &Usage{}
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFrom returns the accumulator attached to ctx, or nil.
func UsageFrom(ctx context.Context) *Usage {
	u, _ := ctx.Value(usageKey{}).(*Usage)
	return u
}
