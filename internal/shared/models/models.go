package models

import "time"

// APIKey is a client credential for the gateway's own /v1 routes. It is
// unrelated to the provider keys in the key pool.
type APIKey struct {
	ID                 string
	KeyHash            string
	KeyPrefix          string
	Name               string
	RateLimitPerMinute int
	CacheEnabled       bool
	CacheTTLSeconds    int
	IsActive           bool
	LastUsedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GatewayLog is one row of the request log. It summarizes a logical request;
// individual attempts are only logged, never stored.
type GatewayLog struct {
	ID           string
	RequestID    string
	APIKeyID     *string
	Endpoint     string
	Model        string // requested model, empty for the ladder default
	ServedModel  *string
	PoolKeyID    *string // key-N of the provider key that answered
	Attempts     int
	FallbackUsed bool
	CacheHit     bool
	LatencyMs    int
	StatusCode   int
	ErrorKind    *string
	CreatedAt    time.Time
}
