package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Risk scoring for phishing URLs, emails, SMS and voice calls",
	Long: `Sentinel scores URLs, emails, SMS messages and phone calls for phishing,
smishing and vishing risk. Run "sentinel serve" for the HTTP API or
"sentinel analyze" to score a single input from the terminal.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().String("tier", string(domain.TierCommunity), "product tier: community or pro")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("weights", "", "YAML weight configuration file")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")

	viper.BindPFlag("tier", rootCmd.PersistentFlags().Lookup("tier"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("scoring.weights_path", rootCmd.PersistentFlags().Lookup("weights"))
	viper.BindPFlag("repository.sqlite_path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(weightsCmd)
}

// initConfig reads in the config file and SENTINEL_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", cfgFile, err)
			os.Exit(1)
		}
	}

	bindEnv(viper.GetViper())
}

// bindEnv maps keys such as cache.lookup_ttl onto SENTINEL_CACHE_LOOKUP_TTL.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("sentinel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig builds the runtime configuration from the tier defaults,
// overridden by the config file, environment and flags known to viper.
func loadConfig(v *viper.Viper) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	switch tier := domain.Tier(strings.ToLower(v.GetString("tier"))); tier {
	case "", domain.TierCommunity:
	case domain.TierPro:
		cfg = domain.ProConfig()
	default:
		return nil, fmt.Errorf("unknown tier %q", tier)
	}

	setString(v, "server.host", &cfg.Server.Host)
	setInt(v, "server.port", &cfg.Server.Port)
	setInt(v, "server.read_timeout", &cfg.Server.ReadTimeout)
	setInt(v, "server.write_timeout", &cfg.Server.WriteTimeout)

	setString(v, "scoring.weights_path", &cfg.Scoring.WeightsPath)
	setDuration(v, "scoring.lookup_timeout", &cfg.Scoring.LookupTimeout)
	setInt(v, "scoring.promotion_threshold", &cfg.Scoring.ReportPromotionThreshold)

	setString(v, "repository.driver", &cfg.Repository.Driver)
	setString(v, "repository.sqlite_path", &cfg.Repository.SQLitePath)
	setString(v, "repository.postgres_host", &cfg.Repository.PostgresHost)
	setInt(v, "repository.postgres_port", &cfg.Repository.PostgresPort)
	setString(v, "repository.postgres_user", &cfg.Repository.PostgresUser)
	setString(v, "repository.postgres_password", &cfg.Repository.PostgresPassword)
	setString(v, "repository.postgres_db", &cfg.Repository.PostgresDB)
	setString(v, "repository.postgres_sslmode", &cfg.Repository.PostgresSSLMode)

	setString(v, "cache.type", &cfg.Cache.Type)
	setInt(v, "cache.local_max_size", &cfg.Cache.LocalMaxSize)
	setDuration(v, "cache.local_ttl", &cfg.Cache.LocalTTL)
	setDuration(v, "cache.lookup_ttl", &cfg.Cache.LookupTTL)
	setString(v, "cache.redis_addr", &cfg.Cache.RedisAddr)
	setString(v, "cache.redis_password", &cfg.Cache.RedisPassword)
	setInt(v, "cache.redis_db", &cfg.Cache.RedisDB)
	setDuration(v, "cache.redis_timeout", &cfg.Cache.RedisTimeout)

	setString(v, "bus.type", &cfg.EventBus.Type)
	setInt(v, "bus.buffer_size", &cfg.EventBus.ChannelBufferSize)
	setString(v, "bus.nats_url", &cfg.EventBus.NATSUrl)
	setString(v, "bus.nats_token", &cfg.EventBus.NATSToken)

	if v.IsSet("worker.enabled") {
		cfg.Worker.Enabled = v.GetBool("worker.enabled")
	}
	if v.IsSet("worker.tenants") {
		cfg.Worker.Tenants = tenantList(v.GetStringSlice("worker.tenants"))
	}
	setInt(v, "worker.count", &cfg.Worker.Count)

	setString(v, "logging.level", &cfg.Logging.Level)
	setString(v, "logging.format", &cfg.Logging.Format)
	if v.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Worker.Count < 0 {
		return nil, fmt.Errorf("worker count must not be negative")
	}
	if cfg.Scoring.LookupTimeout < 0 {
		return nil, fmt.Errorf("lookup timeout must not be negative")
	}
	return cfg, nil
}

func setString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func setInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func setDuration(v *viper.Viper, key string, dst *time.Duration) {
	if v.IsSet(key) {
		*dst = v.GetDuration(key)
	}
}

// setupLogger installs the process-wide slog handler.
func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
