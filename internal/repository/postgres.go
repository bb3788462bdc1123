package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// Pool defaults for the pro tier when RepositoryConfig leaves them unset.
const (
	defaultPostgresMaxOpen = 25
	defaultPostgresMaxIdle = 5
	defaultPostgresLife    = 30 * time.Minute
)

// openPostgres opens the pro tier database. Sessions are tagged with
// application_name so DBAs can tell Sentinel's load apart.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	connector, err := pq.NewConnector(postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres settings: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(defaultPostgresMaxOpen)
	db.SetMaxIdleConns(defaultPostgresMaxIdle)
	db.SetConnMaxLifetime(defaultPostgresLife)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres at %s:%d: %w", orString(cfg.PostgresHost, "localhost"), orInt(cfg.PostgresPort, 5432), err)
	}
	return db, nil
}

// postgresDSN renders a key/value connection string with every value
// quoted, so passwords containing spaces or quotes survive.
func postgresDSN(cfg domain.RepositoryConfig) string {
	params := []struct{ key, val string }{
		{"host", orString(cfg.PostgresHost, "localhost")},
		{"port", fmt.Sprint(orInt(cfg.PostgresPort, 5432))},
		{"user", cfg.PostgresUser},
		{"password", cfg.PostgresPassword},
		{"dbname", orString(cfg.PostgresDB, "sentinel")},
		{"sslmode", orString(cfg.PostgresSSLMode, "disable")},
		{"application_name", "sentinel"},
		{"connect_timeout", "5"},
	}

	var b strings.Builder
	for _, p := range params {
		if p.val == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.key)
		b.WriteString("='")
		b.WriteString(strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(p.val))
		b.WriteByte('\'')
	}
	return b.String()
}

func orString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func orInt(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}
