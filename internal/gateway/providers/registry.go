package providers

import (
	"fmt"
	"net/http"
	"strings"
)

// New returns the provider registered under name. baseURL may be empty to
// use the provider's public endpoint.
func New(name, baseURL string, httpClient *http.Client) (Provider, error) {
	switch strings.ToLower(name) {
	case "gemini", "google":
		return NewGeminiProvider(WithGeminiBaseURL(baseURL), WithGeminiHTTPClient(httpClient)), nil
	case "openai":
		return NewOpenAIProvider(WithOpenAIBaseURL(baseURL), WithOpenAIHTTPClient(httpClient)), nil
	case "anthropic", "claude":
		return NewAnthropicProvider(WithAnthropicBaseURL(baseURL), WithAnthropicHTTPClient(httpClient)), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// DetectProvider determines which provider a model belongs to
func DetectProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "openai"
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	}
	return ""
}
