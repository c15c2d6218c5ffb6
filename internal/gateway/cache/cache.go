package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
)

// Store is the key/value backend, the shared Redis client in production.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// Entry is a cached generation.
type Entry struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Cache stores successful generations keyed by prompt and options. It sits in
// the HTTP layer; the gateway itself never caches.
type Cache struct {
	store Store
}

// New creates a new cache instance
func New(store Store) *Cache {
	return &Cache{store: store}
}

// Key hashes the request into a cache key. Unset options hash differently
// from explicit ones, since defaults may change between deployments.
func Key(prompt string, opts gateway.Options) string {
	keyData := fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		opts.Model,
		fmtPtr(opts.Temperature),
		fmtPtr(opts.TopP),
		fmtPtr(opts.TopK),
		fmtPtr(opts.MaxOutputTokens),
		prompt,
	)

	hash := sha256.Sum256([]byte(keyData))
	return "cache:exact:" + hex.EncodeToString(hash[:])
}

func fmtPtr[T any](p *T) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

// Get retrieves a cached response
func (c *Cache) Get(ctx context.Context, prompt string, opts gateway.Options) (*Entry, error) {
	val, err := c.store.Get(ctx, Key(prompt, opts))
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached response: %w", err)
	}

	return &entry, nil
}

// Set stores a response in cache
func (c *Cache) Set(ctx context.Context, prompt string, opts gateway.Options, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize response: %w", err)
	}

	return c.store.Set(ctx, Key(prompt, opts), string(data), ttl)
}
