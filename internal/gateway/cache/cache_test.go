package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
)

var errMiss = errors.New("miss")

type memStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", errMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func TestCache_SetGet(t *testing.T) {
	store := newMemStore()
	c := New(store)
	ctx := context.Background()

	_, err := c.Get(ctx, "prompt", gateway.Options{})
	assert.ErrorIs(t, err, errMiss)

	require.NoError(t, c.Set(ctx, "prompt", gateway.Options{}, Entry{Text: "answer", Model: "m1"}, time.Hour))

	entry, err := c.Get(ctx, "prompt", gateway.Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer", entry.Text)
	assert.Equal(t, "m1", entry.Model)
	assert.Equal(t, time.Hour, store.ttls[Key("prompt", gateway.Options{})])
}

func TestKey_DependsOnOptions(t *testing.T) {
	temp := float32(0.7)
	otherTemp := float32(0.2)

	base := Key("p", gateway.Options{})
	assert.Equal(t, base, Key("p", gateway.Options{}))
	assert.NotEqual(t, base, Key("q", gateway.Options{}))
	assert.NotEqual(t, base, Key("p", gateway.Options{Model: "m"}))
	assert.NotEqual(t, base, Key("p", gateway.Options{Temperature: &temp}))
	assert.NotEqual(t, Key("p", gateway.Options{Temperature: &temp}), Key("p", gateway.Options{Temperature: &otherTemp}))
	assert.Contains(t, base, "cache:exact:")
}

func TestCache_CorruptEntry(t *testing.T) {
	store := newMemStore()
	store.data[Key("p", gateway.Options{})] = "{not json"

	_, err := New(store).Get(context.Background(), "p", gateway.Options{})
	assert.Error(t, err)
}
