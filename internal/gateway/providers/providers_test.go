package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/outcome"
)

// fakeUpstream replies with status and body, and remembers the last request.
type fakeUpstream struct {
	status int
	body   string

	lastPath   string
	lastHeader http.Header
	lastBody   map[string]any
}

func (f *fakeUpstream) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastPath = r.URL.Path
		f.lastHeader = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		f.lastBody = nil
		_ = json.Unmarshal(raw, &f.lastBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ptr[T any](v T) *T { return &v }

func TestGeminiProvider_Success(t *testing.T) {
	up := &fakeUpstream{
		status: http.StatusOK,
		body:   `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"world"}]},"finishReason":"STOP","index":0}]}`,
	}
	srv := up.serve(t)

	p := NewGeminiProvider(WithGeminiBaseURL(srv.URL))
	text, err := p.Generate(context.Background(), "gemini-key-1", Request{
		Model:           "gemini-2.0-flash",
		Prompt:          "Say hello",
		Temperature:     ptr(float32(0.7)),
		MaxOutputTokens: ptr(128),
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Contains(t, up.lastPath, "gemini-2.0-flash:generateContent")
	assert.Equal(t, "gemini-key-1", up.lastHeader.Get("x-goog-api-key"))
	assert.Equal(t, "google", p.Name())
}

func TestGeminiProvider_ErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected outcome.Class
	}{
		{"quota", 429, `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`, outcome.RateLimited},
		{"bad key", 400, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`, outcome.Unauthorized},
		{"unknown model", 404, `{"error":{"code":404,"message":"models/gemini-0 is not found for API version v1beta","status":"NOT_FOUND"}}`, outcome.ModelUnavailable},
		{"overloaded", 503, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, outcome.Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{status: tt.status, body: tt.body}
			srv := up.serve(t)

			p := NewGeminiProvider(WithGeminiBaseURL(srv.URL))
			_, err := p.Generate(context.Background(), "k", Request{Model: "gemini-2.0-flash", Prompt: "hi"})
			require.Error(t, err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.expected, Classify(context.Background(), err))
		})
	}
}

func TestGeminiProvider_ReusesClientPerKey(t *testing.T) {
	p := NewGeminiProvider(WithGeminiBaseURL("http://127.0.0.1:0"))

	a, err := p.client(context.Background(), "key-a")
	require.NoError(t, err)
	again, err := p.client(context.Background(), "key-a")
	require.NoError(t, err)
	b, err := p.client(context.Background(), "key-b")
	require.NoError(t, err)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
}

func TestOpenAIProvider_Success(t *testing.T) {
	up := &fakeUpstream{
		status: http.StatusOK,
		body:   `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`,
	}
	srv := up.serve(t)

	p := NewOpenAIProvider(WithOpenAIBaseURL(srv.URL + "/v1"))
	text, err := p.Generate(context.Background(), "sk-test", Request{
		Model:       "gpt-4o-mini",
		Prompt:      "ping",
		Temperature: ptr(float32(0.2)),
	})

	require.NoError(t, err)
	assert.Equal(t, "pong", text)
	assert.True(t, strings.HasSuffix(up.lastPath, "/chat/completions"))
	assert.Equal(t, "Bearer sk-test", up.lastHeader.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", up.lastBody["model"])
}

func TestOpenAIProvider_RateLimit(t *testing.T) {
	up := &fakeUpstream{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`,
	}
	srv := up.serve(t)

	p := NewOpenAIProvider(WithOpenAIBaseURL(srv.URL + "/v1"))
	_, err := p.Generate(context.Background(), "sk-test", Request{Model: "gpt-4o-mini", Prompt: "ping"})

	require.Error(t, err)
	assert.Equal(t, outcome.RateLimited, Classify(context.Background(), err))
}

func TestAnthropicProvider_Success(t *testing.T) {
	up := &fakeUpstream{
		status: http.StatusOK,
		body:   `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5","content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":3,"output_tokens":2}}`,
	}
	srv := up.serve(t)

	p := NewAnthropicProvider(WithAnthropicBaseURL(srv.URL))
	text, err := p.Generate(context.Background(), "sk-ant-test", Request{Model: "claude-haiku-4-5", Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	assert.Equal(t, "/v1/messages", up.lastPath)
	assert.Equal(t, "sk-ant-test", up.lastHeader.Get("X-Api-Key"))
	assert.EqualValues(t, anthropicDefaultMaxTokens, up.lastBody["max_tokens"])
}

func TestAnthropicProvider_Unauthorized(t *testing.T) {
	up := &fakeUpstream{
		status: http.StatusUnauthorized,
		body:   `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`,
	}
	srv := up.serve(t)

	p := NewAnthropicProvider(WithAnthropicBaseURL(srv.URL))
	_, err := p.Generate(context.Background(), "bad", Request{Model: "claude-haiku-4-5", Prompt: "hi"})

	require.Error(t, err)
	assert.Equal(t, outcome.Unauthorized, Classify(context.Background(), err))
}

func TestRegistry(t *testing.T) {
	for _, name := range []string{"gemini", "google", "openai", "anthropic", "Claude"} {
		p, err := New(name, "", nil)
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}

	_, err := New("mistral", "", nil)
	assert.Error(t, err)

	assert.Equal(t, "google", DetectProvider("gemini-2.0-flash"))
	assert.Equal(t, "openai", DetectProvider("gpt-4o"))
	assert.Equal(t, "anthropic", DetectProvider("claude-sonnet-4-5"))
	assert.Equal(t, "", DetectProvider("llama-3"))
}
