package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK. One SDK client
// is created lazily per credential and reused.
type GeminiProvider struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiBaseURL points the SDK at a different endpoint.
func WithGeminiBaseURL(u string) GeminiOption {
	return func(p *GeminiProvider) { p.baseURL = u }
}

// WithGeminiHTTPClient sets the HTTP client used by every SDK client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(p *GeminiProvider) { p.httpClient = c }
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(opts ...GeminiOption) *GeminiProvider {
	p := &GeminiProvider{clients: make(map[string]*genai.Client)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GeminiProvider) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.clients[apiKey]; ok {
		return c, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.clients[apiKey] = c
	return c, nil
}

// Generate sends one prompt to the given model and returns the raw text.
func (p *GeminiProvider) Generate(ctx context.Context, apiKey string, req Request) (string, error) {
	c, err := p.client(ctx, apiKey)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if req.TopK != nil {
		topK := float32(*req.TopK)
		config.TopK = &topK
	}
	if req.MaxOutputTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxOutputTokens)
	}

	resp, err := c.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return "", wrapGeminiError(err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "google"
}

// wrapGeminiError keeps the upstream status so the failure can be classified.
// Errors that are not API errors (network, context) pass through unchanged.
func wrapGeminiError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if apiErr.Status != "" {
		msg = apiErr.Status + ": " + msg
	}
	return &Error{
		Provider:   "Gemini",
		StatusCode: apiErr.Code,
		Message:    msg,
		Err:        err,
	}
}
