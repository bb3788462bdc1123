package main

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/scoring"
)

func TestLoadConfig(t *testing.T) {
	t.Run("community defaults", func(t *testing.T) {
		cfg, err := loadConfig(viper.New())
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Tier != domain.TierCommunity {
			t.Errorf("Expected community tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "sqlite" || cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
			t.Errorf("Unexpected community stack: %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
		}
		if cfg.Scoring.ReportPromotionThreshold != 5 {
			t.Errorf("Expected promotion threshold 5, got %d", cfg.Scoring.ReportPromotionThreshold)
		}
	})

	t.Run("pro tier", func(t *testing.T) {
		v := viper.New()
		v.Set("tier", "PRO")
		cfg, err := loadConfig(v)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
			t.Errorf("Unexpected pro stack: %s/%s/%s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
		}
		if !cfg.Worker.Enabled {
			t.Error("Expected the worker to be on by default in the pro tier")
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("SENTINEL_SERVER_PORT", "9090")
		t.Setenv("SENTINEL_CACHE_LOOKUP_TTL", "30s")
		t.Setenv("SENTINEL_SCORING_LOOKUP_TIMEOUT", "100ms")
		t.Setenv("SENTINEL_REPOSITORY_SQLITE_PATH", "/tmp/other.db")
		t.Setenv("SENTINEL_DEBUG", "true")
		t.Setenv("SENTINEL_WORKER_ENABLED", "true")
		t.Setenv("SENTINEL_WORKER_TENANTS", "bank-a,bank-b")

		v := viper.New()
		bindEnv(v)
		cfg, err := loadConfig(v)
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Cache.LookupTTL != 30*time.Second {
			t.Errorf("Expected lookup TTL 30s, got %v", cfg.Cache.LookupTTL)
		}
		if cfg.Scoring.LookupTimeout != 100*time.Millisecond {
			t.Errorf("Expected lookup timeout 100ms, got %v", cfg.Scoring.LookupTimeout)
		}
		if cfg.Repository.SQLitePath != "/tmp/other.db" {
			t.Errorf("Expected sqlite path override, got %s", cfg.Repository.SQLitePath)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Expected debug logging, got %s", cfg.Logging.Level)
		}
		if !cfg.Worker.Enabled || !slices.Equal(cfg.Worker.Tenants, []string{"bank-a", "bank-b"}) {
			t.Errorf("Unexpected worker config %+v", cfg.Worker)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for key, val := range map[string]any{
			"tier":                   "enterprise",
			"server.port":            70000,
			"scoring.lookup_timeout": "-1s",
		} {
			v := viper.New()
			v.Set(key, val)
			if _, err := loadConfig(v); err == nil {
				t.Errorf("Expected error for %s=%v", key, val)
			}
		}
	})
}

func TestTenantList(t *testing.T) {
	got := tenantList([]string{"bank-a, bank-b", "", " bank-c "})
	want := []string{"bank-a", "bank-b", "bank-c"}
	if !slices.Equal(got, want) {
		t.Errorf("tenantList = %v, want %v", got, want)
	}
	if tenantList(nil) != nil {
		t.Error("Expected nil for no tenants")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	t.Run("sms", func(t *testing.T) {
		out, err := execute(t, "analyze", "sms", "URGENT: Your SBI account will be blocked. Share OTP to verify.")
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		var v domain.Verdict
		if err := json.Unmarshal([]byte(out), &v); err != nil {
			t.Fatalf("Failed to decode verdict %q: %v", out, err)
		}
		if v.RiskLevel != domain.RiskDangerous || v.Channel != domain.ChannelSMS {
			t.Errorf("Expected DANGEROUS sms verdict, got %s %s", v.Channel, v.RiskLevel)
		}
	})

	t.Run("url", func(t *testing.T) {
		out, err := execute(t, "analyze", "url", "https://www.google.com")
		if err != nil {
			t.Fatalf("analyze failed: %v", err)
		}
		var v domain.Verdict
		if err := json.Unmarshal([]byte(out), &v); err != nil {
			t.Fatalf("Failed to decode verdict %q: %v", out, err)
		}
		if v.RiskLevel != domain.RiskSafe {
			t.Errorf("Expected SAFE, got %s", v.RiskLevel)
		}
	})

	t.Run("voice rejects bad audio json", func(t *testing.T) {
		_, err := execute(t, "analyze", "voice", "--duration", "30", "--audio", "{nope")
		if err == nil || !strings.Contains(err.Error(), "--audio") {
			t.Errorf("Expected --audio error, got %v", err)
		}
	})
}

func TestWeightsCommand(t *testing.T) {
	out, err := execute(t, "weights")
	if err != nil {
		t.Fatalf("weights failed: %v", err)
	}
	cfg, err := scoring.ParseWeightConfig([]byte(out))
	if err != nil {
		t.Fatalf("Printed weights do not load back: %v", err)
	}
	if len(cfg.Channels) != len(scoring.DefaultWeightConfig().Channels) {
		t.Errorf("Expected every channel in printed weights, got %d", len(cfg.Channels))
	}
}
