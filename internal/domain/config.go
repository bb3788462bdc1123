package domain

import (
	"time"
)

// Config holds the complete Sentinel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Scoring controls how the engine is built
	Scoring ScoringConfig `json:"scoring"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Worker consumes queued analyses from the event bus
	Worker WorkerConfig `json:"worker"`

	Logging LoggingConfig `json:"logging"`
}

// ScoringConfig holds engine construction settings.
type ScoringConfig struct {
	// WeightsPath points at a YAML WeightConfig. Empty uses the built-in defaults.
	WeightsPath string `json:"weightsPath"`

	// LookupTimeout bounds each reputation or domain age lookup.
	LookupTimeout time.Duration `json:"lookupTimeout"`

	// ReportPromotionThreshold is the upvote count at which a community
	// report is promoted into the threat indicator store. Zero disables promotion.
	ReportPromotionThreshold int `json:"reportPromotionThreshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// WorkerConfig controls the queued analysis worker. An empty Tenants
// list consumes every tenant.
type WorkerConfig struct {
	Enabled bool     `json:"enabled"`
	Tenants []string `json:"tenants"`
	Count   int      `json:"count"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity runs on SQLite, Go channels and an in-process LRU.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, NATS and Redis.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Scoring: ScoringConfig{
			LookupTimeout:            250 * time.Millisecond,
			ReportPromotionThreshold: 5,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./sentinel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			LookupTTL:    10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Worker: WorkerConfig{
			Count: 4,
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "sentinel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		RedisTimeout:   100 * time.Millisecond,
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		LookupTTL:      10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Worker.Enabled = true
	return cfg
}
