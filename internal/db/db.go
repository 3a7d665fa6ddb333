package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"searchchat/backend/internal/config"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  model TEXT NOT NULL,
  message_chars INTEGER NOT NULL,
  path TEXT NOT NULL,
  queries TEXT NOT NULL DEFAULT '[]',
  result_count INTEGER NOT NULL DEFAULT 0,
  outcome TEXT NOT NULL,
  trace TEXT NOT NULL DEFAULT '{}',
  elapsed_ms INTEGER NOT NULL,
  created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC);
`

// Open connects to the run log database. file: URLs use the embedded sqlite
// driver, everything else goes through libsql.
func Open(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.DatabaseAuthToken)
	if err != nil {
		return nil, err
	}

	driver := driverFor(dsn)
	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == "sqlite" {
		database.SetMaxOpenConns(1)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

func Migrate(ctx context.Context, database *sql.DB) error {
	for _, statement := range strings.Split(schema, ";") {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if _, err := database.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}
	return nil
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "file:") {
		return "sqlite"
	}
	return "libsql"
}

func buildDSN(rawURL, authToken string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("empty database url")
	}

	if strings.HasPrefix(rawURL, "file:") {
		return rawURL, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}

	if strings.HasPrefix(rawURL, "libsql://") {
		query := parsed.Query()
		if query.Get("authToken") == "" && strings.TrimSpace(authToken) != "" {
			query.Set("authToken", strings.TrimSpace(authToken))
			parsed.RawQuery = query.Encode()
		}
	}

	return parsed.String(), nil
}
