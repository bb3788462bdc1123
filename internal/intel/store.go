// Package intel implements Sentinel's threat intelligence: the reputation
// store consulted by extractors, domain registration ages, and the
// indicator management used by the API.
package intel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/opensource-finance/sentinel/internal/cache"
	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/repository"
)

// DefaultLookupTTL is used when a cached store is built without a TTL.
const DefaultLookupTTL = 10 * time.Minute

// SQLStore answers reputation lookups from the repository.
type SQLStore struct {
	repo domain.Repository
}

// NewSQLStore creates a repository-backed ThreatIndicatorStore.
func NewSQLStore(repo domain.Repository) *SQLStore {
	return &SQLStore{repo: repo}
}

// Lookup reports whether the indicator is a known threat. A miss is not an error.
// Only the exact normalized value is matched; CachedStore resolves parent domains.
func (s *SQLStore) Lookup(ctx context.Context, indicatorType, value string) (domain.LookupResult, error) {
	key, err := Normalize(indicatorType, value)
	if err != nil {
		return domain.LookupResult{}, nil
	}

	ind, err := s.repo.GetIndicator(ctx, indicatorType, key)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.LookupResult{}, nil
	}
	if err != nil {
		return domain.LookupResult{}, fmt.Errorf("threat store: %w", err)
	}

	lastSeen := ind.LastSeen
	return domain.LookupResult{
		KnownThreat: true,
		Source:      ind.Source,
		LastSeen:    &lastSeen,
	}, nil
}

// CachedStore fronts a ThreatIndicatorStore with a domain.Cache.
// Hits and misses are cached; errors are not.
//
// A domain that misses is retried by its registrable domain, so blocking
// example.tk also covers login.example.tk. Each name is cached under its
// own key, which lets Block and Unblock evict exactly the name they change.
type CachedStore struct {
	next  domain.ThreatIndicatorStore
	cache domain.Cache
	ttl   time.Duration
}

// NewCachedStore wraps next with c. A zero ttl uses DefaultLookupTTL.
func NewCachedStore(next domain.ThreatIndicatorStore, c domain.Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultLookupTTL
	}
	return &CachedStore{next: next, cache: c, ttl: ttl}
}

// Lookup serves from cache when possible and populates it otherwise.
func (s *CachedStore) Lookup(ctx context.Context, indicatorType, value string) (domain.LookupResult, error) {
	var res domain.LookupResult
	for _, v := range lookupNames(indicatorType, value) {
		var err error
		if res, err = s.lookupOne(ctx, indicatorType, v); err != nil || res.KnownThreat {
			return res, err
		}
	}
	return res, nil
}

func (s *CachedStore) lookupOne(ctx context.Context, indicatorType, value string) (domain.LookupResult, error) {
	key := lookupKey(indicatorType, value)

	var res domain.LookupResult
	if ok, err := cache.GetJSON(ctx, s.cache, domain.GlobalTenant, key, &res); err == nil && ok {
		return res, nil
	}

	res, err := s.next.Lookup(ctx, indicatorType, value)
	if err != nil {
		return domain.LookupResult{}, err
	}

	_ = cache.SetJSON(ctx, s.cache, domain.GlobalTenant, key, res, s.ttl)
	return res, nil
}

// lookupNames lists the values tried for an indicator, most specific first.
func lookupNames(indicatorType, value string) []string {
	names := []string{value}
	if indicatorType != domain.IndicatorDomain {
		return names
	}
	host, err := Normalize(indicatorType, value)
	if err != nil {
		return names
	}
	if parent, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil && parent != host {
		names = append(names, parent)
	}
	return names
}

// lookupKey is the cache key for an indicator. Values that fail to
// normalize are keyed as given.
func lookupKey(indicatorType, value string) string {
	if norm, err := Normalize(indicatorType, value); err == nil {
		value = norm
	}
	return "ioc:" + indicatorType + ":" + value
}

// AgeSource answers domain age queries from stored registrations.
type AgeSource struct {
	repo domain.Repository
	now  func() time.Time
}

// NewAgeSource creates a repository-backed DomainAgeSource.
func NewAgeSource(repo domain.Repository) *AgeSource {
	return &AgeSource{repo: repo, now: time.Now}
}

// DomainAge returns the whole days since the domain was registered.
func (s *AgeSource) DomainAge(ctx context.Context, name string) (domain.AgeResult, error) {
	host, err := Normalize(domain.IndicatorDomain, name)
	if err != nil {
		return domain.AgeResult{}, nil
	}

	reg, err := s.repo.GetDomainRegistration(ctx, host)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.AgeResult{}, nil
	}
	if err != nil {
		return domain.AgeResult{}, fmt.Errorf("domain registrations: %w", err)
	}

	days := int(s.now().Sub(reg.RegisteredAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return domain.AgeResult{Known: true, Days: days}, nil
}
