package gateway

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/providers"
)

// Options are per-request overrides. Nil fields take the configured defaults.
type Options struct {
	Model           string   `json:"model,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"top_p,omitempty"`
	TopK            *int     `json:"top_k,omitempty"`
	MaxOutputTokens *int     `json:"max_output_tokens,omitempty"`
}

// Validate rejects generation parameters no provider accepts. A request that
// fails here never reaches a key.
func (o Options) Validate() error {
	switch {
	case o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2):
		return errors.New("temperature must be between 0 and 2")
	case o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1):
		return errors.New("top_p must be between 0 and 1")
	case o.TopK != nil && *o.TopK < 1:
		return errors.New("top_k must be at least 1")
	case o.MaxOutputTokens != nil && *o.MaxOutputTokens < 1:
		return errors.New("max_output_tokens must be at least 1")
	}
	return nil
}

// Defaults are the generation parameters used when a request leaves them unset.
type Defaults struct {
	Temperature     float32
	TopP            float32
	TopK            int
	MaxOutputTokens int
}

// DefaultDefaults matches what the interview-prep routes were tuned against.
func DefaultDefaults() Defaults {
	return Defaults{
		Temperature:     0.7,
		TopP:            0.8,
		TopK:            40,
		MaxOutputTokens: 4096,
	}
}

// Backoff controls the delay before retrying after a transient error.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay, e.g. 0.1 for ±10%
}

// DefaultBackoff returns 1s doubling up to 10s with 10% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.InitialDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.Jitter > 0 {
		delay += delay * b.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

// Config tunes the orchestrator.
type Config struct {
	// MaxAttempts caps attempts per request. Zero or anything above
	// keys × models means keys × models.
	MaxAttempts int
	// MaxCooldownWait is how long a request may wait for a cooling key when
	// no key is ready. Zero aborts immediately.
	MaxCooldownWait time.Duration
	Backoff         Backoff
	Defaults        Defaults
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Backoff:  DefaultBackoff(),
		Defaults: DefaultDefaults(),
	}
}

// request resolves options against defaults. The caller's Options and the
// values its pointers refer to are never written.
func (d Defaults) request(prompt string, opts Options) providers.Request {
	req := providers.Request{Prompt: prompt}

	temperature := d.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	req.Temperature = &temperature

	topP := d.TopP
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	if topP > 0 {
		req.TopP = &topP
	}

	topK := d.TopK
	if opts.TopK != nil {
		topK = *opts.TopK
	}
	if topK > 0 {
		req.TopK = &topK
	}

	maxTokens := d.MaxOutputTokens
	if opts.MaxOutputTokens != nil {
		maxTokens = *opts.MaxOutputTokens
	}
	if maxTokens > 0 {
		req.MaxOutputTokens = &maxTokens
	}
	return req
}
