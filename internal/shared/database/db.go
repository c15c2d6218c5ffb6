package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/mrmushfiq/llm0-keypool-gateway/internal/shared/models"
)

// ErrInvalidAPIKey is returned when no active client key matches.
var ErrInvalidAPIKey = errors.New("invalid API key")

// Schema creates the tables the gateway writes to. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id                    UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	key_hash              TEXT NOT NULL UNIQUE,
	key_prefix            TEXT NOT NULL,
	name                  TEXT NOT NULL DEFAULT '',
	rate_limit_per_minute INTEGER NOT NULL DEFAULT 100,
	cache_enabled         BOOLEAN NOT NULL DEFAULT TRUE,
	cache_ttl_seconds     INTEGER NOT NULL DEFAULT 3600,
	is_active             BOOLEAN NOT NULL DEFAULT TRUE,
	last_used_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS gateway_logs (
	id            BIGSERIAL PRIMARY KEY,
	request_id    TEXT NOT NULL,
	api_key_id    UUID REFERENCES api_keys(id),
	endpoint      TEXT NOT NULL,
	model         TEXT NOT NULL DEFAULT '',
	served_model  TEXT,
	pool_key_id   TEXT,
	attempts      INTEGER NOT NULL DEFAULT 0,
	fallback_used BOOLEAN NOT NULL DEFAULT FALSE,
	cache_hit     BOOLEAN NOT NULL DEFAULT FALSE,
	latency_ms    INTEGER NOT NULL DEFAULT 0,
	status_code   INTEGER NOT NULL,
	error_kind    TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS gateway_logs_created_at_idx ON gateway_logs (created_at);
`

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection, for the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies Schema.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// HashKey is how client keys are stored.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// GetAPIKey retrieves an API key by its raw key value
func (db *DB) GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	query := `
		SELECT id, key_hash, key_prefix, name, rate_limit_per_minute, cache_enabled, 
		       cache_ttl_seconds, is_active, last_used_at, created_at, updated_at
		FROM api_keys
		WHERE key_hash = $1 AND is_active = true
	`

	var apiKey models.APIKey
	err := db.conn.QueryRowContext(ctx, query, HashKey(rawKey)).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.Name,
		&apiKey.RateLimitPerMinute,
		&apiKey.CacheEnabled,
		&apiKey.CacheTTLSeconds,
		&apiKey.IsActive,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
		&apiKey.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &apiKey, nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp
func (db *DB) UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`
	_, err := db.conn.ExecContext(ctx, query, apiKeyID)
	return err
}

// LogRequest logs a gateway request
func (db *DB) LogRequest(ctx context.Context, log *models.GatewayLog) error {
	query := `
		INSERT INTO gateway_logs (
			request_id, api_key_id, endpoint, model, served_model, pool_key_id,
			attempts, fallback_used, cache_hit, latency_ms, status_code, error_kind
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		log.RequestID,
		log.APIKeyID,
		log.Endpoint,
		log.Model,
		log.ServedModel,
		log.PoolKeyID,
		log.Attempts,
		log.FallbackUsed,
		log.CacheHit,
		log.LatencyMs,
		log.StatusCode,
		log.ErrorKind,
	)

	return err
}
