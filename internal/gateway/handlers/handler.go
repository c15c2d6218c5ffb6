package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/models"
)

// Options configures a Handler. Cache and RequestLog are optional.
type Options struct {
	Gateway      Generator
	Cache        *cache.Cache
	CacheEnabled bool
	CacheTTL     time.Duration
	RequestLog   RequestLog
	Provider     string
	Logger       *logrus.Entry
	// Health names the backing services /health pings, e.g. "database".
	Health map[string]Pinger
}

// Handler serves the /v1 and /internal routes.
type Handler struct {
	gw           Generator
	cache        *cache.Cache
	cacheEnabled bool
	cacheTTL     time.Duration
	provider     string
	health       map[string]Pinger
	logs         *logger
	log          *logrus.Entry
}

func New(opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "http")
	return &Handler{
		gw:           opts.Gateway,
		cache:        opts.Cache,
		cacheEnabled: opts.CacheEnabled,
		cacheTTL:     opts.CacheTTL,
		provider:     opts.Provider,
		health:       opts.Health,
		logs:         &logger{store: opts.RequestLog, log: log},
		log:          log,
	}
}

// completion is what both text endpoints need back from the gateway.
type completion struct {
	Text     string
	Model    string
	CacheHit bool
	Result   *gateway.Result
	Record   *gateway.AttemptRecord
}

func (h *Handler) useCache(client *models.APIKey) (bool, time.Duration) {
	if h.cache == nil || !h.cacheEnabled {
		return false, 0
	}
	ttl := h.cacheTTL
	if client != nil {
		if !client.CacheEnabled {
			return false, 0
		}
		if client.CacheTTLSeconds > 0 {
			ttl = time.Duration(client.CacheTTLSeconds) * time.Second
		}
	}
	return true, ttl
}

// complete serves a prompt from the cache or the gateway.
func (h *Handler) complete(ctx context.Context, client *models.APIKey, prompt string, opts gateway.Options) (*completion, error) {
	cached, ttl := h.useCache(client)
	if cached {
		if entry, err := h.cache.Get(ctx, prompt, opts); err == nil {
			return &completion{
				Text:     entry.Text,
				Model:    entry.Model,
				CacheHit: true,
				Record:   &gateway.AttemptRecord{RequestID: uuid.New().String(), StartedAt: time.Now()},
			}, nil
		}
	}

	res, record, err := h.gw.Generate(ctx, prompt, opts)
	if err != nil {
		return &completion{Record: record}, err
	}

	if cached {
		if err := h.cache.Set(ctx, prompt, opts, cache.Entry{Text: res.Text, Model: res.Model}, ttl); err != nil {
			h.log.WithError(err).Debug("cache write failed")
		}
	}
	return &completion{
		Text:   res.Text,
		Model:  res.Model,
		Result: res,
		Record: record,
	}, nil
}
