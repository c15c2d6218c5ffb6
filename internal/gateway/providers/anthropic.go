package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider handles Anthropic Claude API requests
type AnthropicProvider struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*anthropic.Client
}

// AnthropicOption configures an AnthropicProvider.
type AnthropicOption func(*AnthropicProvider)

// WithAnthropicBaseURL points the SDK at a different endpoint.
func WithAnthropicBaseURL(u string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = u }
}

// WithAnthropicHTTPClient sets the HTTP client.
func WithAnthropicHTTPClient(c *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.httpClient = c }
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{clients: make(map[string]*anthropic.Client)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AnthropicProvider) client(apiKey string) *anthropic.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[apiKey]; ok {
		return c
	}
	// Retries belong to the gateway, which rotates keys instead.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(p.httpClient))
	}
	c := anthropic.NewClient(reqOpts...)
	p.clients[apiKey] = &c
	return &c
}

// Generate sends one user message through the Messages API
func (p *AnthropicProvider) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	maxTokens := int64(anthropicDefaultMaxTokens)
	if req.MaxOutputTokens != nil && *req.MaxOutputTokens > 0 {
		maxTokens = int64(*req.MaxOutputTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(float64(*req.TopP))
	}
	if req.TopK != nil {
		params.TopK = anthropic.Int(int64(*req.TopK))
	}

	resp, err := p.client(apiKey).Messages.New(ctx, params)
	if err != nil {
		return "", wrapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func wrapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return &Error{
		Provider:   "Anthropic",
		StatusCode: apiErr.StatusCode,
		Message:    apiErr.Error(),
		Err:        err,
	}
}
