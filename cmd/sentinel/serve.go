package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opensource-finance/sentinel/internal/api"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
	"github.com/opensource-finance/sentinel/internal/intel"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/scoring"
	"github.com/opensource-finance/sentinel/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the async analysis worker",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "listen host")
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().Bool("worker", false, "run the async analysis worker (on by default in the pro tier)")
	serveCmd.Flags().StringSlice("tenants", nil, "tenants the worker serves (default: all)")
	serveCmd.Flags().Int("workers", 4, "concurrent analyses per worker")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("worker.enabled", serveCmd.Flags().Lookup("worker"))
	viper.BindPFlag("worker.tenants", serveCmd.Flags().Lookup("tenants"))
	viper.BindPFlag("worker.count", serveCmd.Flags().Lookup("workers"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	setupLogger(cfg.Logging)

	slog.Info("starting sentinel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"weights", cfg.Scoring.WeightsPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	store := intel.NewCachedStore(intel.NewSQLStore(repo), cacheImpl, cfg.Cache.LookupTTL)
	ages := intel.NewAgeSource(repo)

	eng, err := buildEngine(cfg.Scoring, store, ages)
	if err != nil {
		return err
	}
	slog.Info("engine initialized", "lookup_timeout", cfg.Scoring.LookupTimeout)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, repo, eng)
		workerCfg := worker.Config{
			TenantIDs:   cfg.Worker.Tenants,
			WorkerCount: cfg.Worker.Count,
		}
		if err := asyncWorker.Start(workerCfg); err != nil {
			return fmt.Errorf("failed to start async worker: %w", err)
		}
		slog.Info("async worker started", "tenants", workerCfg.TenantIDs, "workers", workerCfg.WorkerCount)
	}

	srv := api.NewServer(cfg.Server, eng, api.Options{
		Repo:               repo,
		Cache:              cacheImpl,
		Bus:                busImpl,
		Intel:              intel.NewService(repo, cacheImpl),
		Store:              store,
		Ages:               ages,
		PromotionThreshold: cfg.Scoring.ReportPromotionThreshold,
		Version:            Version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("sentinel is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)
	printBanner(cmd, cfg)

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case serveErr = <-errCh:
		slog.Error("server failed", "error", serveErr)
	}

	// The worker goes first so in-flight analyses can still be stored.
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("sentinel shutdown complete")
	return serveErr
}

// buildEngine loads the weight configuration and constructs the engine.
func buildEngine(cfg domain.ScoringConfig, store domain.ThreatIndicatorStore, ages domain.DomainAgeSource) (*engine.Engine, error) {
	weights, err := scoring.LoadWeightConfig(cfg.WeightsPath)
	if err != nil {
		return nil, err
	}
	return engine.New(weights, engine.Options{
		Store:         store,
		Ages:          ages,
		LookupTimeout: cfg.LookupTimeout,
	})
}

// tenantList accepts tenants given as repeated flags or as one
// comma separated environment value.
func tenantList(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, t := range strings.Split(item, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func printBanner(cmd *cobra.Command, cfg *domain.Config) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  SENTINEL - phishing, smishing and vishing risk scoring")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Version:  %s\n", Version)
	fmt.Fprintf(w, "  Tier:     %s\n", cfg.Tier)
	fmt.Fprintf(w, "  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Endpoints:")
	fmt.Fprintln(w, "    POST /api/phishing/scan            - Score a URL")
	fmt.Fprintln(w, "    POST /api/phishing/analyze-email   - Score an email")
	fmt.Fprintln(w, "    GET  /api/phishing/check-domain    - Domain reputation and age")
	fmt.Fprintln(w, "    POST /api/smishing/analyze-sms     - Score an SMS")
	fmt.Fprintln(w, "    POST /api/vishing/analyze-call     - Score a phone call")
	fmt.Fprintln(w, "    GET  /api/analyses                 - Analysis history")
	fmt.Fprintln(w, "    POST /api/analyses                 - Queue an analysis")
	fmt.Fprintln(w, "    POST /api/indicators               - Block an indicator")
	fmt.Fprintln(w, "    POST /api/reports                  - Submit a community report")
	fmt.Fprintln(w, "    GET  /health                       - Health check")
	fmt.Fprintln(w)
}
