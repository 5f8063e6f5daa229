package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"order-analyst/config"

	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		MaxRetries:           3,
		RetryDelaySeconds:    time.Millisecond,
		LLMBackoffMaxSeconds: 5 * time.Millisecond,
		LLMRequestTimeout:    5 * time.Second,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.Endpoint{Provider: "llamacpp", Host: srv.URL + "/"}, testConfig(), zap.NewNop())
}

func TestCompleteRetriesWhileLoading(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body chatRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != RoleSystem {
			t.Errorf("messages = %+v", body.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":7,"completion_tokens":2}}`))
	})

	out, err := c.Complete(context.Background(), Prompt("be brief", "hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Content != "hello" || out.TokensIn != 7 || out.TokensOut != 2 {
		t.Errorf("completion = %+v", out)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompleteContextWindowExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"the request exceeds the available context size"}`))
	})
	_, err := c.Complete(context.Background(), Prompt("", "hi"))
	if !errors.Is(err, ErrContextWindowExceeded) {
		t.Fatalf("err = %v, want ErrContextWindowExceeded", err)
	}
}

func TestCompleteCountsTokensWhenUsageMissing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokenize":
			w.Write([]byte(`{"tokens":[1,2,3]}`))
		default:
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
		}
	})
	out, err := c.Complete(context.Background(), Prompt("", "hi"))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.TokensIn != 3 || out.TokensOut != 3 {
		t.Errorf("tokens = %d/%d, want 3/3", out.TokensIn, out.TokensOut)
	}
}

func TestEmbed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"embedding":[[0.5,0.25]]}]`))
	})
	vec, err := c.Embed(context.Background(), "Column: revenue")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Errorf("vec = %v", vec)
	}
}

func TestInstrumentationAccumulatesUsage(t *testing.T) {
	base := ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
		return &Completion{Content: "x", TokensIn: 10, TokensOut: 5}, nil
	})
	m := Chain(base, WithInstrumentation("test", nil))

	ctx, usage := WithUsage(context.Background())
	for i := 0; i < 3; i++ {
		if _, err := m.Complete(ctx, Prompt("", "q")); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if got := usage.Total(); got != 45 {
		t.Errorf("Total() = %d, want 45", got)
	}
	in, out := usage.Split()
	if in != 30 || out != 15 {
		t.Errorf("Split() = %d/%d, want 30/15", in, out)
	}
}

func TestRetryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		wantErr   bool
		wantCalls int32
	}{
		{"succeeds_after_failures", 2, false, 3},
		{"gives_up", 10, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			base := ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
				if calls.Add(1) <= tt.failures {
					return nil, errors.New("transient")
				}
				return &Completion{Content: "done"}, nil
			})
			m := Chain(base, WithRetry(2, time.Millisecond, 2*time.Millisecond, 0, zap.NewNop()))
			_, err := m.Complete(context.Background(), Prompt("", "q"))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Model) Model {
			return ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
				order = append(order, name)
				return next.Complete(ctx, req)
			})
		}
	}
	base := ModelFunc(func(ctx context.Context, req Request) (*Completion, error) {
		order = append(order, "base")
		return &Completion{}, nil
	})
	Chain(base, tag("outer"), tag("inner")).Complete(context.Background(), Request{})
	want := []string{"outer", "inner", "base"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	_, err := NewModel(context.Background(), config.Endpoint{Provider: "fax"}, testConfig(), nil, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
