package domain

import (
	"context"
	"time"
)

// Indicator types understood by the threat store.
const (
	IndicatorURL    = "url"
	IndicatorDomain = "domain"
	IndicatorEmail  = "email"
	IndicatorPhone  = "phone"
)

// ValidIndicatorType reports whether t is a known indicator type.
func ValidIndicatorType(t string) bool {
	switch t {
	case IndicatorURL, IndicatorDomain, IndicatorEmail, IndicatorPhone:
		return true
	}
	return false
}

// ThreatIndicatorStore answers reputation queries for URLs, domains and senders.
// A miss is a zero LookupResult with a nil error; errors mean the store is unavailable.
type ThreatIndicatorStore interface {
	Lookup(ctx context.Context, indicatorType, value string) (LookupResult, error)
}

// LookupResult is the answer to a reputation query.
type LookupResult struct {
	KnownThreat bool       `json:"knownThreat"`
	Source      string     `json:"source,omitempty"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}

// DomainAgeSource reports how long ago a domain was registered.
// A miss is a zero AgeResult with a nil error.
type DomainAgeSource interface {
	DomainAge(ctx context.Context, domain string) (AgeResult, error)
}

// AgeResult is the answer to a domain age query.
type AgeResult struct {
	Known bool `json:"known"`
	Days  int  `json:"days"`
}

// ThreatIndicator is a stored indicator of compromise.
type ThreatIndicator struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
	Details   string    `json:"details,omitempty"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// DomainRegistration records when a domain was first registered.
type DomainRegistration struct {
	Domain       string    `json:"domain"`
	Registrar    string    `json:"registrar,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Report is a community submitted threat report.
type Report struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenantId"`
	Channel        Channel   `json:"channel"`
	IndicatorType  string    `json:"indicatorType"`
	IndicatorValue string    `json:"indicatorValue"`
	Description    string    `json:"description,omitempty"`
	Upvotes        int       `json:"upvotes"`
	Promoted       bool      `json:"promoted"`
	CreatedAt      time.Time `json:"createdAt"`
}
