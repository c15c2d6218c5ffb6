package handlers

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/models"
)

// ErrUnknownKey is returned by StaticKeys for a key it does not hold.
var ErrUnknownKey = errors.New("invalid API key")

// KeyStore resolves client bearer tokens. *database.DB implements it.
type KeyStore interface {
	GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// RateLimiter counts requests per client. *redis.Client implements it.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, clientID string, limit int) (bool, int, error)
}

type ctxKey struct{}

// ClientFromContext returns the authenticated client, or nil on open routes.
func ClientFromContext(ctx context.Context) *models.APIKey {
	apiKey, _ := ctx.Value(ctxKey{}).(*models.APIKey)
	return apiKey
}

// StaticKeys is a KeyStore over a fixed list, used when no database is
// configured.
type StaticKeys struct {
	keys map[string]*models.APIKey
}

// NewStaticKeys builds a store from raw client keys. Every key gets the same
// rate limit and caching policy.
func NewStaticKeys(raw []string, rateLimit int, cacheEnabled bool) *StaticKeys {
	s := &StaticKeys{keys: make(map[string]*models.APIKey, len(raw))}
	for i, k := range raw {
		hash := sha256.Sum256([]byte(k))
		prefix := k
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		s.keys[k] = &models.APIKey{
			ID:                 fmt.Sprintf("static-%d", i+1),
			KeyHash:            hex.EncodeToString(hash[:]),
			KeyPrefix:          prefix,
			Name:               fmt.Sprintf("static key %d", i+1),
			RateLimitPerMinute: rateLimit,
			CacheEnabled:       cacheEnabled,
			IsActive:           true,
		}
	}
	return s
}

// GetAPIKey looks up a raw key.
func (s *StaticKeys) GetAPIKey(_ context.Context, rawKey string) (*models.APIKey, error) {
	k, ok := s.keys[rawKey]
	if !ok {
		return nil, ErrUnknownKey
	}
	return k, nil
}

type Middleware struct {
	keys             KeyStore
	limiter          RateLimiter
	defaultRateLimit int
	adminToken       string
	log              *logrus.Entry
}

// NewMiddleware wires the optional stores. A nil KeyStore leaves /v1 open and
// a nil RateLimiter disables inbound limiting.
func NewMiddleware(keys KeyStore, limiter RateLimiter, defaultRateLimit int, adminToken string, log *logrus.Entry) *Middleware {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Middleware{
		keys:             keys,
		limiter:          limiter,
		defaultRateLimit: defaultRateLimit,
		adminToken:       adminToken,
		log:              log.WithField("component", "middleware"),
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("missing authorization header")
	}

	// Parse Bearer token
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization header format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// AuthMiddleware validates client API keys
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.keys == nil {
			next.ServeHTTP(w, r)
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		apiKey, err := m.keys.GetAPIKey(r.Context(), token)
		if err != nil {
			m.log.WithError(err).Debug("client key rejected")
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKey{}, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware guards the /internal routes with the operator token.
func (m *Middleware) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminToken == "" {
			http.NotFound(w, r)
			return
		}
		token, err := bearerToken(r)
		if err != nil || subtle.ConstantTimeCompare([]byte(token), []byte(m.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware enforces per-client rate limits
func (m *Middleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := ClientFromContext(r.Context())
		if apiKey == nil || m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		limit := apiKey.RateLimitPerMinute
		if limit <= 0 {
			limit = m.defaultRateLimit
		}
		if limit <= 0 {
			limit = 100 // fallback default
		}

		exceeded, remaining, err := m.limiter.CheckRateLimit(r.Context(), apiKey.ID, limit)
		if err != nil {
			// Fail open: Redis trouble must not take the gateway down.
			m.log.WithError(err).Warn("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if exceeded {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware handles CORS
func (m *Middleware) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
