package moonshot

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hddy2000/medical-beauty-ai-demo/internal/provider"
	"github.com/hddy2000/medical-beauty-ai-demo/internal/shared/telemetry"
)

const (
	Name = "moonshot"

	DefaultBaseURL     = "https://api.moonshot.cn/v1"
	DefaultModel       = "kimi-k2.5"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxTokens   = 1000
	DefaultTemperature = 1.0

	// APIKeySetting names the credential in configuration errors.
	APIKeySetting = "KIMI_API_KEY"
)

// Options configures the client. Zero values fall back to the defaults above.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	api         *openai.Client
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	apiKey := strings.TrimSpace(opts.APIKey)
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}

	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
	}
}

func (c *Client) Info() provider.Info {
	return provider.Info{Name: Name, Model: c.model}
}

// Preflight reports a missing credential before any record is created.
func (c *Client) Preflight() error {
	if c.apiKey == "" {
		return &provider.ConfigurationError{Setting: APIKeySetting}
	}
	return nil
}

// Assess sends a single chat completion request and returns the first
// choice's content verbatim. It does not retry.
func (c *Client) Assess(ctx context.Context, videoRef, note string) (string, error) {
	if err := c.Preflight(); err != nil {
		return "", err
	}
	if strings.TrimSpace(videoRef) == "" {
		return "", &provider.ProviderError{Provider: Name, Kind: provider.KindTransport, Err: provider.ErrEmptyVideoRef}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    BuildMessages(videoRef, note),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", c.classify(ctx, callCtx, err)
	}

	telemetry.Info("provider.usage", map[string]any{
		"provider":          Name,
		"model":             c.model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"duration_ms":       time.Since(start).Milliseconds(),
	})

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &provider.ProviderError{Provider: Name, Kind: provider.KindEmptyResponse}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) classify(parent, callCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || (errors.Is(callCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil) {
		return &provider.ProviderError{Provider: Name, Kind: provider.KindTimeout, Timeout: c.timeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &provider.ProviderError{Provider: Name, Kind: provider.KindCanceled, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &provider.ProviderError{
			Provider:   Name,
			Kind:       provider.KindUpstream,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &provider.ProviderError{
			Provider:   Name,
			Kind:       provider.KindUpstream,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       strings.TrimSpace(string(reqErr.Body)),
			Err:        err,
		}
	}
	return &provider.ProviderError{Provider: Name, Kind: provider.KindTransport, Err: err}
}

var (
	_ provider.Provider    = (*Client)(nil)
	_ provider.Preflighter = (*Client)(nil)
)
