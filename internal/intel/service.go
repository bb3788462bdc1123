package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/repository"
)

// SourceCommunity marks indicators promoted from community reports.
const SourceCommunity = "community"

// Service manages threat indicators and domain registrations.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// Stats summarises the threat indicator store.
type Stats struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"byType"`
}

// NewService creates a Service. c may be nil when lookups are not cached.
func NewService(repo domain.Repository, c domain.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

// Block stores an indicator as a known threat and evicts any cached answer.
func (s *Service) Block(ctx context.Context, ind *domain.ThreatIndicator) error {
	if !domain.ValidIndicatorType(ind.Type) {
		return fmt.Errorf("%w: unknown indicator type %q", repository.ErrInvalidInput, ind.Type)
	}
	value, err := Normalize(ind.Type, ind.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	ind.Value = value
	if ind.Severity == "" {
		ind.Severity = "high"
	}
	if ind.Source == "" {
		ind.Source = "manual"
	}

	if err := s.repo.SaveIndicator(ctx, ind); err != nil {
		return err
	}
	s.evict(ctx, ind.Type, value)

	slog.Info("threat indicator blocked",
		"type", ind.Type,
		"source", ind.Source,
	)
	return nil
}

// Unblock removes an indicator.
func (s *Service) Unblock(ctx context.Context, indicatorType, value string) error {
	key, err := Normalize(indicatorType, value)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	if err := s.repo.DeleteIndicator(ctx, indicatorType, key); err != nil {
		return err
	}
	s.evict(ctx, indicatorType, key)
	return nil
}

// Get returns a stored indicator.
func (s *Service) Get(ctx context.Context, indicatorType, value string) (*domain.ThreatIndicator, error) {
	key, err := Normalize(indicatorType, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	return s.repo.GetIndicator(ctx, indicatorType, key)
}

// Stats counts stored indicators per type.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.CountIndicators(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{ByType: make(map[string]int64, len(counts))}
	for t, n := range counts {
		st.ByType[t] = n
		st.Total += n
	}
	return st, nil
}

// RecordRegistration stores when a domain was registered.
func (s *Service) RecordRegistration(ctx context.Context, name, registrar string, registeredAt time.Time) error {
	host, err := Normalize(domain.IndicatorDomain, name)
	if err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	return s.repo.SaveDomainRegistration(ctx, &domain.DomainRegistration{
		Domain:       host,
		Registrar:    registrar,
		RegisteredAt: registeredAt,
	})
}

// Upvote records a vote on a report. Once the report reaches threshold votes
// its indicator is blocked and the report is marked promoted.
func (s *Service) Upvote(ctx context.Context, tenantID, reportID string, threshold int) (*domain.Report, error) {
	rep, err := s.repo.UpvoteReport(ctx, tenantID, reportID)
	if err != nil {
		return nil, err
	}
	if rep.Promoted || threshold <= 0 || rep.Upvotes < threshold {
		return rep, nil
	}

	err = s.Block(ctx, &domain.ThreatIndicator{
		Type:     rep.IndicatorType,
		Value:    rep.IndicatorValue,
		Source:   SourceCommunity,
		Severity: "medium",
		Details:  rep.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to promote report %s: %w", rep.ID, err)
	}
	if err := s.repo.MarkReportPromoted(ctx, tenantID, rep.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	rep.Promoted = true
	return rep, nil
}

func (s *Service) evict(ctx context.Context, indicatorType, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, domain.GlobalTenant, lookupKey(indicatorType, value)); err != nil {
		slog.Warn("failed to evict cached lookup", "type", indicatorType, "error", err)
	}
}
