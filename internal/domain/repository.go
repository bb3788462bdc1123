// Package domain defines the core interfaces and types for Sentinel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Tenant-owned records (analyses, reports) require tenantID for isolation.
type Repository interface {
	// Threat indicators are global, shared by every tenant.
	SaveIndicator(ctx context.Context, ind *ThreatIndicator) error
	GetIndicator(ctx context.Context, indicatorType, value string) (*ThreatIndicator, error)
	DeleteIndicator(ctx context.Context, indicatorType, value string) error
	CountIndicators(ctx context.Context) (map[string]int64, error)

	// Domain registration data
	SaveDomainRegistration(ctx context.Context, reg *DomainRegistration) error
	GetDomainRegistration(ctx context.Context, domain string) (*DomainRegistration, error)

	// Analysis history
	SaveAnalysis(ctx context.Context, tenantID string, a *Analysis) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*Analysis, error)
	ListAnalyses(ctx context.Context, tenantID string, filter AnalysisFilter) ([]*Analysis, error)

	// Community reports
	SaveReport(ctx context.Context, tenantID string, r *Report) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*Report, error)
	ListReports(ctx context.Context, tenantID string, limit int) ([]*Report, error)
	UpvoteReport(ctx context.Context, tenantID string, reportID string) (*Report, error)
	MarkReportPromoted(ctx context.Context, tenantID string, reportID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
