package domain

import (
	"context"
	"time"
)

// Cache is a tenant-scoped byte cache. Sentinel stores reputation and
// domain age answers in it so repeated senders and links skip the
// indicator store.
//
// Get returns nil, nil on a miss. An empty tenantID is rejected.
type Cache interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error

	Ping(ctx context.Context) error
	Close() error
}

// GlobalTenant scopes cache entries that are shared by all tenants,
// such as threat indicator lookups.
const GlobalTenant = "_global"

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string

	LocalMaxSize int
	LocalTTL     time.Duration // upper bound for entries held in process when Redis backs the cache

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisTimeout bounds each Redis round trip. Lookups run inside the
	// analysis deadline, so a slow Redis must fail fast.
	RedisTimeout time.Duration

	// EnableTwoPhase keeps a local LRU in front of Redis and listens for
	// invalidations published by other instances.
	EnableTwoPhase bool

	// LookupTTL bounds how long reputation answers are reused.
	LookupTTL time.Duration
}
