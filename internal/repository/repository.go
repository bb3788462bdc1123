// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/sentinel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveIndicator upserts a threat indicator. FirstSeen is kept from the original row.
func (r *SQLRepository) SaveIndicator(ctx context.Context, ind *domain.ThreatIndicator) error {
	if ind == nil || ind.Value == "" {
		return fmt.Errorf("%w: indicator value is required", ErrInvalidInput)
	}
	if !domain.ValidIndicatorType(ind.Type) {
		return fmt.Errorf("%w: unknown indicator type %q", ErrInvalidInput, ind.Type)
	}

	now := time.Now().UTC()
	if ind.FirstSeen.IsZero() {
		ind.FirstSeen = now
	}
	if ind.LastSeen.IsZero() {
		ind.LastSeen = now
	}

	query := `
		INSERT INTO threat_indicators (
			type, value, source, severity, details, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(type, value) DO UPDATE SET
			source = excluded.source,
			severity = excluded.severity,
			details = excluded.details,
			last_seen = excluded.last_seen
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ind.Type, ind.Value, ind.Source, ind.Severity, ind.Details,
		ind.FirstSeen.UTC(), ind.LastSeen.UTC(),
	)
	return err
}

// GetIndicator retrieves a threat indicator by type and normalized value.
func (r *SQLRepository) GetIndicator(ctx context.Context, indicatorType, value string) (*domain.ThreatIndicator, error) {
	query := `
		SELECT type, value, source, severity, details, first_seen, last_seen
		FROM threat_indicators
		WHERE type = ? AND value = ?
	`

	var ind domain.ThreatIndicator
	var details sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), indicatorType, value).Scan(
		&ind.Type, &ind.Value, &ind.Source, &ind.Severity, &details,
		&ind.FirstSeen, &ind.LastSeen,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ind.Details = details.String
	return &ind, nil
}

// DeleteIndicator removes a threat indicator.
func (r *SQLRepository) DeleteIndicator(ctx context.Context, indicatorType, value string) error {
	query := `DELETE FROM threat_indicators WHERE type = ? AND value = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), indicatorType, value)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CountIndicators returns the number of stored indicators per type.
func (r *SQLRepository) CountIndicators(ctx context.Context) (map[string]int64, error) {
	query := `SELECT type, COUNT(*) FROM threat_indicators GROUP BY type`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var t string
		var n int64
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}

	return counts, rows.Err()
}

// SaveDomainRegistration upserts the registration record of a domain.
func (r *SQLRepository) SaveDomainRegistration(ctx context.Context, reg *domain.DomainRegistration) error {
	if reg == nil || reg.Domain == "" {
		return fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	if reg.RegisteredAt.IsZero() {
		return fmt.Errorf("%w: registration time is required", ErrInvalidInput)
	}

	reg.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO domain_registrations (domain, registrar, registered_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			registrar = excluded.registrar,
			registered_at = excluded.registered_at,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		strings.ToLower(reg.Domain), reg.Registrar, reg.RegisteredAt.UTC(), reg.UpdatedAt,
	)
	return err
}

// GetDomainRegistration retrieves the registration record of a domain.
func (r *SQLRepository) GetDomainRegistration(ctx context.Context, name string) (*domain.DomainRegistration, error) {
	query := `
		SELECT domain, registrar, registered_at, updated_at
		FROM domain_registrations
		WHERE domain = ?
	`

	var reg domain.DomainRegistration
	var registrar sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), strings.ToLower(name)).Scan(
		&reg.Domain, &registrar, &reg.RegisteredAt, &reg.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	reg.Registrar = registrar.String
	return &reg, nil
}

// SaveAnalysis stores an analysis with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, a *domain.Analysis) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	verdict, err := json.Marshal(a.Verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	signals, err := json.Marshal(a.Signals)
	if err != nil {
		return fmt.Errorf("failed to encode signals: %w", err)
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO analyses (
			id, tenant_id, channel, subject, risk_level, risk_score,
			verdict, signals, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, string(a.Channel), a.Subject,
		string(a.Verdict.RiskLevel), a.Verdict.RiskScore,
		string(verdict), string(signals), a.CreatedAt.UTC(),
	)
	return err
}

// GetAnalysis retrieves an analysis by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, channel, subject, verdict, signals, created_at
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	a, err := scanAnalysis(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAnalyses retrieves the most recent analyses for a tenant.
func (r *SQLRepository) ListAnalyses(ctx context.Context, tenantID string, filter domain.AnalysisFilter) ([]*domain.Analysis, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	var where strings.Builder
	args := []any{tenantID}
	where.WriteString("tenant_id = ?")
	if filter.Channel != "" {
		where.WriteString(" AND channel = ?")
		args = append(args, string(filter.Channel))
	}
	if filter.RiskLevel != "" {
		where.WriteString(" AND risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	args = append(args, clampLimit(filter.Limit))

	query := `
		SELECT id, tenant_id, channel, subject, verdict, signals, created_at
		FROM analyses
		WHERE ` + where.String() + `
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var analyses []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}

	return analyses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var channel, verdict string
	var signals sql.NullString

	if err := row.Scan(&a.ID, &a.TenantID, &channel, &a.Subject, &verdict, &signals, &a.CreatedAt); err != nil {
		return nil, err
	}

	a.Channel = domain.Channel(channel)
	if err := json.Unmarshal([]byte(verdict), &a.Verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict for %s: %w", a.ID, err)
	}
	if signals.String != "" {
		if err := json.Unmarshal([]byte(signals.String), &a.Signals); err != nil {
			return nil, fmt.Errorf("failed to parse signals for %s: %w", a.ID, err)
		}
	}

	return &a, nil
}

// SaveReport stores a community report with tenant isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, rep *domain.Report) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rep.IndicatorValue == "" || !domain.ValidIndicatorType(rep.IndicatorType) {
		return fmt.Errorf("%w: report needs a known indicator type and a value", ErrInvalidInput)
	}

	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO reports (
			id, tenant_id, channel, indicator_type, indicator_value,
			description, upvotes, promoted, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rep.ID, tenantID, string(rep.Channel), rep.IndicatorType, rep.IndicatorValue,
		rep.Description, rep.Upvotes, boolInt(rep.Promoted), rep.CreatedAt.UTC(),
	)
	return err
}

// GetReport retrieves a report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, channel, indicator_type, indicator_value,
			   description, upvotes, promoted, created_at
		FROM reports
		WHERE tenant_id = ? AND id = ?
	`

	rep, err := scanReport(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rep, err
}

// ListReports retrieves the most recent reports for a tenant.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID string, limit int) ([]*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, channel, indicator_type, indicator_value,
			   description, upvotes, promoted, created_at
		FROM reports
		WHERE tenant_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}

	return reports, rows.Err()
}

// UpvoteReport increments a report's vote count and returns the updated report.
func (r *SQLRepository) UpvoteReport(ctx context.Context, tenantID string, reportID string) (*domain.Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE reports SET upvotes = upvotes + 1 WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, reportID)
	if err != nil {
		return nil, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetReport(ctx, tenantID, reportID)
}

// MarkReportPromoted flags a report as copied into the threat indicator store.
func (r *SQLRepository) MarkReportPromoted(ctx context.Context, tenantID string, reportID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `UPDATE reports SET promoted = 1 WHERE tenant_id = ? AND id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), tenantID, reportID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var rep domain.Report
	var channel string
	var description sql.NullString
	var promoted int

	if err := row.Scan(
		&rep.ID, &rep.TenantID, &channel, &rep.IndicatorType, &rep.IndicatorValue,
		&description, &rep.Upvotes, &promoted, &rep.CreatedAt,
	); err != nil {
		return nil, err
	}

	rep.Channel = domain.Channel(channel)
	rep.Description = description.String
	rep.Promoted = promoted == 1
	return &rep, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
