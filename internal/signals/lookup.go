package signals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// DefaultLookupTimeout bounds a single reputation or domain age query.
const DefaultLookupTimeout = 250 * time.Millisecond

// Lookups holds the external capabilities extractors may consult.
// A nil Store disables reputation signals; a nil Ages source leaves
// domain age unknown.
type Lookups struct {
	Store   domain.ThreatIndicatorStore
	Ages    domain.DomainAgeSource
	Timeout time.Duration
}

func (l Lookups) timeout() time.Duration {
	if l.Timeout <= 0 {
		return DefaultLookupTimeout
	}
	return l.Timeout
}

// reputation queries the threat store. ok is false when no store is configured.
func (l Lookups) reputation(ctx context.Context, name, indicatorType, value string) (sig domain.Signal, ok bool) {
	if l.Store == nil {
		return domain.Signal{}, false
	}

	sig = domain.Signal{Name: name, Kind: domain.KindReputation}
	value = strings.TrimSpace(value)
	if value == "" {
		return sig, true
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	res, err := l.Store.Lookup(ctx, indicatorType, value)
	if err != nil {
		slog.Debug("reputation lookup unavailable",
			"type", indicatorType,
			"error", err,
		)
		sig.Unknown = true
		sig.Reason = err.Error()
		return sig, true
	}

	sig.Flag = res.KnownThreat
	sig.Text = res.Source
	return sig, true
}

// domainAge queries the domain age source.
func (l Lookups) domainAge(ctx context.Context, host string) domain.Signal {
	sig := domain.Signal{Name: domain.SignalDomainAgeDays, Kind: domain.KindNumber, Unknown: true}
	if l.Ages == nil || host == "" {
		return sig
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout())
	defer cancel()

	res, err := l.Ages.DomainAge(ctx, host)
	if err != nil {
		slog.Debug("domain age lookup unavailable",
			"domain", host,
			"error", err,
		)
		sig.Reason = err.Error()
		return sig
	}
	if !res.Known {
		return sig
	}

	sig.Unknown = false
	sig.Value = float64(res.Days)
	sig.Text = fmt.Sprintf("%d days old", res.Days)
	return sig
}
