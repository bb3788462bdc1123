// Package worker runs queued analyses from the EventBus and publishes
// their verdicts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/sentinel/internal/bus"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
)

// ErrStopped is returned for requests that arrive after Stop.
var ErrStopped = errors.New("worker stopped")

// Analyzer produces a verdict with its evidence. *engine.Engine satisfies it.
type Analyzer interface {
	Explain(ctx context.Context, in domain.RawInput) engine.Explanation
}

// Worker consumes analysis requests from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	analyzer Analyzer

	subscriptions []domain.Subscription
	sem           chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	stopped       bool
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	alerts    atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process. Empty subscribes to every tenant.
	TenantIDs []string

	// WorkerCount bounds concurrent analyses across all subscriptions.
	WorkerCount int
}

// NewWorker creates a new async worker. repo may be nil, in which case
// analyses are published but not persisted.
func NewWorker(b domain.EventBus, repo domain.Repository, analyzer Analyzer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      b,
		repo:     repo,
		analyzer: analyzer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to analysis requests for the configured tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 4
	}
	w.sem = make(chan struct{}, count)

	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{domain.AnyTenant}
	}

	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAnalysisRequested, w.dispatch)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	if len(w.subscriptions) == 0 {
		return fmt.Errorf("worker: no subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", len(w.subscriptions),
		"worker_count", count,
		"topic", domain.TopicAnalysisRequested,
	)
	return nil
}

// dispatch hands a message to a bounded pool so a slow lookup does not
// stall the subscription. A request is counted before it waits for a slot,
// so Stop also waits for requests queued behind the pool.
func (w *Worker) dispatch(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	w.wg.Add(1)
	w.mu.Unlock()

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		w.wg.Done()
		return ctx.Err()
	}

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		if err := w.process(w.ctx, msg); err != nil {
			w.failed.Add(1)
			slog.Error("analysis request failed",
				"message_id", msg.ID,
				"tenant_id", msg.TenantID,
				"error", err,
			)
		}
	}()
	return nil
}

// process analyses one request, stores it and publishes the verdict.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.AnalysisRequest
	if err := bus.Decode(msg, &req); err != nil {
		return err
	}
	if !req.Input.Channel.Valid() {
		return fmt.Errorf("unsupported channel %q", req.Input.Channel)
	}
	if req.ID == "" {
		req.ID = msg.ID
	}
	tenantID := msg.TenantID

	exp := w.analyzer.Explain(ctx, req.Input)
	analysis := &domain.Analysis{
		ID:        req.ID,
		TenantID:  tenantID,
		Channel:   req.Input.Channel,
		Subject:   req.Input.Summary(),
		Verdict:   exp.Verdict,
		Signals:   exp.Signals,
		CreatedAt: time.Now().UTC(),
	}

	if w.repo != nil {
		if err := w.repo.SaveAnalysis(ctx, tenantID, analysis); err != nil {
			slog.Error("failed to save analysis",
				"analysis_id", analysis.ID,
				"error", err,
			)
		}
	}

	event := domain.VerdictEvent{
		AnalysisID: analysis.ID,
		TenantID:   tenantID,
		Subject:    analysis.Subject,
		Verdict:    exp.Verdict,
	}

	var errs []error
	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicVerdict, event); err != nil {
		errs = append(errs, fmt.Errorf("publish verdict: %w", err))
	}

	if exp.Verdict.RiskLevel == domain.RiskDangerous {
		w.alerts.Add(1)
		if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicAlert, event); err != nil {
			errs = append(errs, fmt.Errorf("publish alert: %w", err))
		}
	}

	w.processed.Add(1)
	slog.Info("analysis processed",
		"analysis_id", analysis.ID,
		"tenant_id", tenantID,
		"channel", analysis.Channel,
		"risk_level", exp.Verdict.RiskLevel,
		"risk_score", exp.Verdict.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return errors.Join(errs...)
}

// Enqueue publishes an analysis request and returns its ID.
func Enqueue(ctx context.Context, b domain.EventBus, tenantID string, in domain.RawInput) (string, error) {
	req := domain.AnalysisRequest{
		ID:    uuid.New().String(),
		Input: in,
	}
	if err := bus.PublishJSON(ctx, b, tenantID, domain.TopicAnalysisRequested, req); err != nil {
		return "", err
	}
	return req.ID, nil
}

// Stop unsubscribes and waits for in-flight analyses to finish.
func (w *Worker) Stop() error {
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.wg.Wait()
	w.cancel()

	slog.Info("workers stopped", "processed", w.processed.Load())
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	Alerts            int64    `json:"alerts"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		Alerts:            w.alerts.Load(),
	}
}
