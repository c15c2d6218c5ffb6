package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported upstream providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// maxNumberedKeys bounds GEMINI_API_KEY_2 .. GEMINI_API_KEY_N.
const maxNumberedKeys = 5

var defaultLadders = map[string][]string{
	ProviderGemini: {
		"gemini-2.0-flash",
		"gemini-2.0-flash-lite",
		"gemini-1.5-flash",
		"gemini-1.5-flash-8b",
	},
	ProviderOpenAI: {
		"gpt-4o-mini",
		"gpt-4o",
		"gpt-3.5-turbo",
	},
	ProviderAnthropic: {
		"claude-3-5-haiku-latest",
		"claude-3-5-sonnet-latest",
		"claude-3-haiku-20240307",
	},
}

// Config holds all configuration for the gateway
type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database (optional: request log and client keys)
	DatabaseURL string

	// Redis (optional: response cache and inbound rate limit)
	RedisURL string

	// Upstream provider and its key pool
	Provider        string
	ProviderBaseURL string
	ProviderAPIKeys []string

	// Model fallback ladder, highest priority first
	Models []string

	// Key pool
	KeyCooldown         time.Duration
	KeyDisableDuration  time.Duration
	KeyUsageWindow      time.Duration
	KeyFailureThreshold int
	KeyRPM              int

	// Orchestrator
	MaxAttempts       int
	MaxCooldownWait   time.Duration
	CallTimeout       time.Duration
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
	RetryMultiplier   float64
	RetryJitter       float64

	// Generation defaults
	DefaultTemperature     float64
	DefaultTopP            float64
	DefaultTopK            int
	DefaultMaxOutputTokens int

	// Caching
	CacheEnabled    bool
	CacheTTLSeconds int

	// Inbound rate limiting, requests per minute per client key
	DefaultRateLimit int

	// Access control
	AdminToken string
	ClientKeys []string
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("provider", ProviderGemini)

	v.SetDefault("key_cooldown", 60*time.Second)
	v.SetDefault("key_disable_duration", time.Duration(0))
	v.SetDefault("key_usage_window", time.Minute)
	v.SetDefault("key_failure_threshold", 0)
	v.SetDefault("key_rpm", 0)

	v.SetDefault("max_attempts", 0)
	v.SetDefault("max_cooldown_wait", time.Duration(0))
	v.SetDefault("call_timeout", 30*time.Second)
	v.SetDefault("retry_initial_delay", time.Second)
	v.SetDefault("retry_max_delay", 10*time.Second)
	v.SetDefault("retry_multiplier", 2.0)
	v.SetDefault("retry_jitter", 0.1)

	v.SetDefault("default_temperature", 0.7)
	v.SetDefault("default_top_p", 0.8)
	v.SetDefault("default_top_k", 40)
	v.SetDefault("default_max_output_tokens", 4096)

	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_ttl_seconds", 3600)
	v.SetDefault("default_rate_limit", 100)
}

// Load reads .env, the optional YAML file at path (or $GATEWAY_CONFIG) and
// the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("GATEWAY_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:     v.GetString("port"),
		Env:      v.GetString("env"),
		LogLevel: v.GetString("log_level"),

		DatabaseURL: v.GetString("database_url"),
		RedisURL:    v.GetString("redis_url"),

		Provider:        strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		ProviderBaseURL: v.GetString("provider_base_url"),

		KeyFailureThreshold: v.GetInt("key_failure_threshold"),
		KeyRPM:              v.GetInt("key_rpm"),

		MaxAttempts:     v.GetInt("max_attempts"),
		RetryMultiplier: v.GetFloat64("retry_multiplier"),
		RetryJitter:     v.GetFloat64("retry_jitter"),

		DefaultTemperature:     v.GetFloat64("default_temperature"),
		DefaultTopP:            v.GetFloat64("default_top_p"),
		DefaultTopK:            v.GetInt("default_top_k"),
		DefaultMaxOutputTokens: v.GetInt("default_max_output_tokens"),

		CacheEnabled:     v.GetBool("cache_enabled"),
		CacheTTLSeconds:  v.GetInt("cache_ttl_seconds"),
		DefaultRateLimit: v.GetInt("default_rate_limit"),

		AdminToken: v.GetString("admin_token"),
		ClientKeys: getList(v, "gateway_client_keys"),
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"key_cooldown", &cfg.KeyCooldown},
		{"key_disable_duration", &cfg.KeyDisableDuration},
		{"key_usage_window", &cfg.KeyUsageWindow},
		{"max_cooldown_wait", &cfg.MaxCooldownWait},
		{"call_timeout", &cfg.CallTimeout},
		{"retry_initial_delay", &cfg.RetryInitialDelay},
		{"retry_max_delay", &cfg.RetryMaxDelay},
	}
	for _, d := range durations {
		val, err := getDuration(v, d.key)
		if err != nil {
			return nil, err
		}
		*d.dst = val
	}

	if cfg.Provider == "google" {
		cfg.Provider = ProviderGemini
	}
	if cfg.Provider == "claude" {
		cfg.Provider = ProviderAnthropic
	}

	cfg.ProviderAPIKeys = collectKeys(v, cfg.Provider)

	cfg.Models = getList(v, "model_ladder")
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), defaultLadders[cfg.Provider]...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields the gateway cannot start without.
func (c *Config) Validate() error {
	if _, ok := defaultLadders[c.Provider]; !ok {
		return fmt.Errorf("unknown PROVIDER %q (want gemini, openai or anthropic)", c.Provider)
	}

	// At least one provider API key is required
	if len(c.ProviderAPIKeys) == 0 {
		return fmt.Errorf("at least one %s API key is required (PROVIDER_API_KEYS or the provider's own variables)", c.Provider)
	}
	if len(c.Models) == 0 {
		return errors.New("MODEL_LADDER must name at least one model")
	}
	if c.CallTimeout <= 0 {
		return errors.New("CALL_TIMEOUT must be positive")
	}
	if c.MaxAttempts < 0 || c.KeyFailureThreshold < 0 || c.KeyRPM < 0 {
		return errors.New("MAX_ATTEMPTS, KEY_FAILURE_THRESHOLD and KEY_RPM must not be negative")
	}
	return nil
}

// collectKeys gathers the key pool. PROVIDER_API_KEYS wins; otherwise each
// provider's own variables are read, including GEMINI_API_KEY_2..5.
func collectKeys(v *viper.Viper, provider string) []string {
	if keys := getList(v, "provider_api_keys"); len(keys) > 0 {
		return dedupe(keys)
	}

	var keys []string
	switch provider {
	case ProviderGemini:
		keys = append(keys, splitList(v.GetString("gemini_api_key"))...)
		for i := 2; i <= maxNumberedKeys; i++ {
			keys = append(keys, splitList(v.GetString(fmt.Sprintf("gemini_api_key_%d", i)))...)
		}
	case ProviderOpenAI:
		keys = splitList(v.GetString("openai_api_key"))
	case ProviderAnthropic:
		keys = splitList(v.GetString("anthropic_api_key"))
	}
	return dedupe(keys)
}

// getDuration reads a Go duration such as "60s" or "1m30s". A bare number
// other than zero is rejected: viper would read KEY_COOLDOWN=60 as 60ns.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	name := strings.ToUpper(key)

	switch raw := v.Get(key).(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return raw, nil
	case string:
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return 0, nil
		}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			if n == 0 {
				return 0, nil
			}
			return 0, fmt.Errorf("%s=%s has no unit (write %ss for seconds)", name, raw, raw)
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	case int, int64, float64:
		if fmt.Sprint(raw) == "0" {
			return 0, nil
		}
		return 0, fmt.Errorf("%s=%v has no unit (write %vs for seconds)", name, raw, raw)
	default:
		return v.GetDuration(key), nil
	}
}

// getList reads a comma separated env value or a YAML sequence.
func getList(v *viper.Viper, key string) []string {
	switch val := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		return splitList(val)
	case []string:
		return splitList(strings.Join(val, ","))
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return splitList(strings.Join(parts, ","))
	default:
		return splitList(fmt.Sprint(val))
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, val := range values {
		if seen[val] {
			continue
		}
		seen[val] = true
		out = append(out, val)
	}
	return out
}
