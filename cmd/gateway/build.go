package main

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/keypool"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/ladder"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/gateway/providers"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/config"
	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/logging"
)

// buildGateway assembles the key pool, ladder, provider and executor from
// configuration. It is called once per process.
func buildGateway(cfg *config.Config, logger *logrus.Logger) (*gateway.Gateway, error) {
	pool, err := keypool.New(cfg.ProviderAPIKeys,
		keypool.WithCooldown(cfg.KeyCooldown),
		keypool.WithDisableDuration(cfg.KeyDisableDuration),
		keypool.WithUsageWindow(cfg.KeyUsageWindow),
		keypool.WithFailureThreshold(cfg.KeyFailureThreshold),
		keypool.WithRequestsPerMinute(cfg.KeyRPM),
	)
	if err != nil {
		return nil, fmt.Errorf("key pool: %w", err)
	}

	models, err := ladder.New(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("model ladder: %w", err)
	}

	provider, err := providers.New(cfg.Provider, cfg.ProviderBaseURL, &http.Client{})
	if err != nil {
		return nil, err
	}

	for _, c := range models.Candidates() {
		if owner := providers.DetectProvider(c.Model); owner != "" && owner != provider.Name() {
			logger.WithFields(logrus.Fields{
				"model":    c.Model,
				"provider": provider.Name(),
			}).Warn("model does not look like it belongs to the configured provider")
		}
	}

	exec := providers.NewExecutor(provider, pool, cfg.CallTimeout, logging.Component(logger, "executor"))

	gwCfg := gateway.Config{
		MaxAttempts:     cfg.MaxAttempts,
		MaxCooldownWait: cfg.MaxCooldownWait,
		Backoff: gateway.Backoff{
			InitialDelay: cfg.RetryInitialDelay,
			MaxDelay:     cfg.RetryMaxDelay,
			Multiplier:   cfg.RetryMultiplier,
			Jitter:       cfg.RetryJitter,
		},
		Defaults: gateway.Defaults{
			Temperature:     float32(cfg.DefaultTemperature),
			TopP:            float32(cfg.DefaultTopP),
			TopK:            cfg.DefaultTopK,
			MaxOutputTokens: cfg.DefaultMaxOutputTokens,
		},
	}

	logger.WithFields(logrus.Fields{
		"provider": provider.Name(),
		"keys":     pool.Len(),
		"models":   models.Len(),
	}).Info("gateway initialized")

	return gateway.New(pool, models, exec, gwCfg, logger.WithField("provider", provider.Name())), nil
}
