package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// ErrTenantRequired is returned when a cache call has no tenant scope.
var ErrTenantRequired = errors.New("tenantID is required")

// New creates the cache named by cfg.Type.
//
//	memory            in-process LRU (community tier)
//	redis             Redis only
//	redis + two-phase LRU in front of Redis (pro tier default)
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		remote, err := NewRedisCache(cfg)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// invalidator is implemented by shared tiers that can tell peers about
// deleted keys.
type invalidator interface {
	Publish(ctx context.Context, fullKey string) error
	Subscribe(ctx context.Context, fn func(fullKey string)) error
}

// TwoPhaseCache keeps recent lookups in process and falls through to a
// shared tier. Failures of the shared tier read as misses so a Redis
// outage slows lookups down instead of failing them.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   domain.Cache
	localTTL time.Duration
	stop     context.CancelFunc
}

// NewTwoPhaseCache layers local over remote. Entries stay local for at
// most localTTL (default one minute). When remote supports invalidation,
// deletes made by other instances evict the local copy.
func NewTwoPhaseCache(local *LRUCache, remote domain.Cache, localTTL time.Duration) *TwoPhaseCache {
	if localTTL <= 0 {
		localTTL = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &TwoPhaseCache{local: local, remote: remote, localTTL: localTTL, stop: cancel}

	if inv, ok := remote.(invalidator); ok {
		if err := inv.Subscribe(ctx, local.evict); err != nil {
			slog.Warn("cache invalidations disabled; local entries expire by ttl only",
				"local_ttl", localTTL, "error", err)
		}
	}
	return c
}

func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		slog.Debug("shared cache read failed", "key", key, "error", err)
		return nil, nil
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.localTTL)
	}
	return val, nil
}

func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, min(ttl, c.localTTL)); err != nil {
		return err
	}
	if err := c.remote.Set(ctx, tenantID, key, value, ttl); err != nil {
		return fmt.Errorf("shared cache write failed: %w", err)
	}
	return nil
}

// Delete evicts the key from both tiers and from every peer's local tier.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	if err := c.remote.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	if inv, ok := c.remote.(invalidator); ok {
		return inv.Publish(ctx, makeKey(tenantID, key))
	}
	return nil
}

func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache ping failed: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	c.stop()
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local tier.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}

// GetJSON decodes a cached JSON value into dst.
// It reports false when the key is missing or the value cannot be decoded;
// undecodable values are evicted.
func GetJSON(ctx context.Context, c domain.Cache, tenantID, key string, dst any) (bool, error) {
	data, err := c.Get(ctx, tenantID, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		_ = c.Delete(ctx, tenantID, key)
		return false, nil
	}
	return true, nil
}

// SetJSON encodes v as JSON and caches it.
func SetJSON(ctx context.Context, c domain.Cache, tenantID, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return c.Set(ctx, tenantID, key, data, ttl)
}

func makeKey(tenantID, key string) string {
	return tenantID + ":" + key
}
