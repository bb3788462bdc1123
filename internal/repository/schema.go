package repository

// Schema definitions for Sentinel database.
// Compatible with both SQLite and PostgreSQL.

// Threat indicators are shared by all tenants.
const schemaThreatIndicators = `
CREATE TABLE IF NOT EXISTS threat_indicators (
    type TEXT NOT NULL,
    value TEXT NOT NULL,
    source TEXT NOT NULL,
    severity TEXT NOT NULL,
    details TEXT,
    first_seen TIMESTAMP NOT NULL,
    last_seen TIMESTAMP NOT NULL,
    PRIMARY KEY (type, value)
);

CREATE INDEX IF NOT EXISTS idx_threat_indicators_type ON threat_indicators(type);
`

const schemaDomainRegistrations = `
CREATE TABLE IF NOT EXISTS domain_registrations (
    domain TEXT PRIMARY KEY,
    registrar TEXT,
    registered_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    channel TEXT NOT NULL,
    subject TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    risk_score REAL NOT NULL,
    verdict TEXT NOT NULL,
    signals TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_channel ON analyses(tenant_id, channel);
CREATE INDEX IF NOT EXISTS idx_analyses_level ON analyses(tenant_id, risk_level);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(tenant_id, created_at);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS reports (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    channel TEXT NOT NULL,
    indicator_type TEXT NOT NULL,
    indicator_value TEXT NOT NULL,
    description TEXT,
    upvotes INTEGER NOT NULL DEFAULT 0,
    promoted INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_tenant ON reports(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reports_indicator ON reports(indicator_type, indicator_value);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaThreatIndicators,
		schemaDomainRegistrations,
		schemaAnalyses,
		schemaReports,
	}
}
