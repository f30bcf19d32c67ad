package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI talks to the chat completions API, either on api.openai.com or on
// an Azure OpenAI deployment.
type OpenAI struct {
	client openai.Client
	model  string
	name   string
}

// Option configures an OpenAI-compatible client.
type Option func(*openAIOptions)

type openAIOptions struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// WithBaseURL sets a custom base URL (for testing or proxying).
func WithBaseURL(url string) Option {
	return func(o *openAIOptions) { o.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *openAIOptions) { o.httpClient = client }
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *openAIOptions) { o.maxRetries = n }
}

func NewOpenAI(apiKey, model string, opts ...Option) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	return newOpenAI("openai", model, reqOpts, opts)
}

// NewAzure targets an Azure OpenAI resource. The deployment name takes the
// place of the model.
func NewAzure(endpoint, apiVersion, apiKey, deployment string, opts ...Option) *OpenAI {
	reqOpts := []option.RequestOption{
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	}
	return newOpenAI("azure", deployment, reqOpts, opts)
}

func newOpenAI(name, model string, reqOpts []option.RequestOption, opts []Option) *OpenAI {
	o := openAIOptions{maxRetries: 2}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	reqOpts = append(reqOpts, option.WithMaxRetries(o.maxRetries))
	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		model:  model,
		name:   name,
	}
}

func (c *OpenAI) Name() string { return c.name }

func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature >= 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classify(c.name, apiErr.StatusCode, apiErr.Code, apiErr.Message, err)
		}
		return "", classify(c.name, 0, "", err.Error(), err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
