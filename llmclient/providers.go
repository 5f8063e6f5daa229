package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"order-analyst/config"
	apperrors "order-analyst/errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const (
	openAIDefaultModel    = "gpt-4o-mini"
	anthropicDefaultModel = "claude-3-5-sonnet-20241022"
	googleDefaultModel    = "gemini-2.0-flash"
	defaultMaxTokens      = 2048
)

// OpenAIModel serves chat and embeddings through the OpenAI API or any
// compatible base URL.
type OpenAIModel struct {
	client *openai.Client
	model  string
}

func NewOpenAIModel(ep config.Endpoint, cfg *config.Config) (*OpenAIModel, error) {
	if ep.APIKey == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "openai API key cannot be empty")
	}
	clientConfig := openai.DefaultConfig(ep.APIKey)
	if ep.Host != "" {
		clientConfig.BaseURL = strings.TrimRight(ep.Host, "/")
	}
	if cfg.LLMRequestTimeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.LLMRequestTimeout}
	}
	model := ep.Model
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIModel{client: openai.NewClientWithConfig(clientConfig), model: model}, nil
}

func (m *OpenAIModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	creq := openai.ChatCompletionRequest{
		Model:     m.model,
		Messages:  messages,
		Stop:      req.Stop,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}

	resp, err := m.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "openai chat completion: %v", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.WrapError(apperrors.ErrLLMCommunication, "no response choices from openai")
	}
	return &Completion{
		Content:   resp.Choices[0].Message.Content,
		TokensIn:  resp.Usage.PromptTokens,
		TokensOut: resp.Usage.CompletionTokens,
	}, nil
}

func (m *OpenAIModel) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "openai embeddings: %v", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return resp.Data[0].Embedding, nil
}

// AnthropicModel serves chat through the Anthropic Messages API.
type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicModel(ep config.Endpoint, cfg *config.Config) (*AnthropicModel, error) {
	if ep.APIKey == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "anthropic API key cannot be empty")
	}
	opts := []option.RequestOption{option.WithAPIKey(ep.APIKey)}
	if ep.Host != "" {
		opts = append(opts, option.WithBaseURL(ep.Host))
	}
	if cfg.LLMRequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.LLMRequestTimeout))
	}
	model := ep.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicModel{client: anthropic.NewClient(opts...), model: model, maxTokens: maxTokens}, nil
}

func (m *AnthropicModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(m.model),
		MaxTokens:     int64(maxTokens),
		StopSequences: req.Stop,
	}
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "anthropic messages: %v", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(content.Text)
		}
	}
	return &Completion{
		Content:   text.String(),
		TokensIn:  int(message.Usage.InputTokens),
		TokensOut: int(message.Usage.OutputTokens),
	}, nil
}

// GoogleModel serves chat through the Gemini API.
type GoogleModel struct {
	client    *genai.Client
	model     string
	maxTokens int
}

func NewGoogleModel(ctx context.Context, ep config.Endpoint, cfg *config.Config) (*GoogleModel, error) {
	if ep.APIKey == "" {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, "google API key cannot be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  ep.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "create genai client: %v", err)
	}
	model := ep.Model
	if model == "" {
		model = googleDefaultModel
	}
	return &GoogleModel{client: client, model: model, maxTokens: cfg.MaxTokens}, nil
}

func (m *GoogleModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	gcfg := &genai.GenerateContentConfig{StopSequences: req.Stop}
	var contents []*genai.Content
	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		gcfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != nil {
		gcfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens > 0 {
		gcfg.MaxOutputTokens = int32(maxTokens)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, gcfg)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrLLMCommunication, "gemini generate content: %v", err)
	}
	out := &Completion{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		out.TokensIn = int(resp.UsageMetadata.PromptTokenCount)
		out.TokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
