package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/cache"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/handlers"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/database"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/logging"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/redis"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	logger.WithFields(logrus.Fields{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("starting LLM gateway")

	gw, err := buildGateway(cfg, logger)
	if err != nil {
		return err
	}

	opts := handlers.Options{
		Gateway:      gw,
		CacheEnabled: cfg.CacheEnabled,
		CacheTTL:     time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Provider:     cfg.Provider,
		Logger:       logger.WithField("service", "gateway"),
		Health:       map[string]handlers.Pinger{},
	}

	var keys handlers.KeyStore
	var limiter handlers.RateLimiter

	// Initialize database
	if cfg.DatabaseURL != "" {
		db, err := database.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("connected to PostgreSQL")

		keys = db
		opts.RequestLog = db
		opts.Health["database"] = db
	} else if len(cfg.ClientKeys) > 0 {
		keys = handlers.NewStaticKeys(cfg.ClientKeys, cfg.DefaultRateLimit, cfg.CacheEnabled)
	} else {
		logger.Warn("no DATABASE_URL or GATEWAY_CLIENT_KEYS: /v1 is open")
	}

	// Initialize Redis
	if cfg.RedisURL != "" {
		redisClient, err := redis.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("connected to Redis")

		opts.Cache = cache.New(redisClient)
		opts.Health["redis"] = redisClient
		limiter = redisClient
	}

	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty: /internal/keys is disabled")
	}

	h := handlers.New(opts)
	mw := handlers.NewMiddleware(keys, limiter, cfg.DefaultRateLimit, cfg.AdminToken, logging.Component(logger, "http"))
	router := handlers.NewRouter(h, mw, handlers.DefaultRequestTimeout, logging.Component(logger, "access"))

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: handlers.DefaultRequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
