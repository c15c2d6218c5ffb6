package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// DefaultRequestTimeout bounds a whole HTTP request, all attempts included.
const DefaultRequestTimeout = 60 * time.Second

// NewRouter mounts every route. The /internal group is only mounted when an
// admin token is configured.
func NewRouter(h *Handler, m *Middleware, requestTimeout time.Duration, log *logrus.Entry) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	if log != nil {
		r.Use(chimiddleware.RequestLogger(&chimiddleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(m.CORSMiddleware)

	// Health check (no auth required)
	r.Get("/health", h.HandleHealth)

	// API routes (with auth and rate limiting)
	r.Route("/v1", func(r chi.Router) {
		r.Use(m.AuthMiddleware)
		r.Use(m.RateLimitMiddleware)

		r.Post("/generate", h.HandleGenerate)
		r.Post("/chat/completions", h.HandleChatCompletion)
	})

	if m.adminToken != "" {
		r.Route("/internal/keys", func(r chi.Router) {
			r.Use(m.AdminMiddleware)

			r.Get("/", h.HandleKeysStatus)
			r.Post("/reset", h.HandleKeysReset)
			r.Post("/probe", h.HandleKeysProbe)
		})
	}

	return r
}
