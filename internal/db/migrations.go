package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Each migration runs once, in order, and is recorded in schema_migrations.
// {{serial}} and {{blob}} are replaced per dialect.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		seq        {{serial}},
		id         TEXT NOT NULL UNIQUE,
		agent_id   TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL DEFAULT '',
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS memories_agent_role ON memories (agent_id, role);
	CREATE TABLE IF NOT EXISTS vectors (
		seq        {{serial}},
		id         TEXT NOT NULL UNIQUE,
		namespace  TEXT NOT NULL,
		embedding  TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		document   TEXT NOT NULL DEFAULT '',
		source     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS vectors_namespace ON vectors (namespace);
	CREATE TABLE IF NOT EXISTS events (
		seq        {{serial}},
		id         TEXT NOT NULL UNIQUE,
		topic      TEXT NOT NULL,
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS agent_logs (
		seq        {{serial}},
		agent_id   TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		level      TEXT NOT NULL DEFAULT 'INFO',
		message    TEXT NOT NULL DEFAULT '',
		payload    TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS rlhf_logs (
		seq           {{serial}},
		agent_id      TEXT NOT NULL DEFAULT '',
		session_id    TEXT NOT NULL DEFAULT '',
		feedback_type TEXT NOT NULL DEFAULT '',
		rating        DOUBLE PRECISION NOT NULL,
		comments      TEXT NOT NULL DEFAULT '',
		metadata      TEXT NOT NULL DEFAULT '{}',
		created_at    TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS files (
		seq          {{serial}},
		id           TEXT NOT NULL UNIQUE,
		filename     TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes   INTEGER NOT NULL,
		data         {{blob}},
		metadata     TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL
	);`,
}

type dialect struct {
	serial  string
	blob    string
	noLimit string
}

var dialects = map[string]dialect{
	DriverPostgres: {serial: "BIGSERIAL PRIMARY KEY", blob: "BYTEA", noLimit: "ALL"},
	DriverSQLite:   {serial: "INTEGER PRIMARY KEY AUTOINCREMENT", blob: "BLOB", noLimit: "-1"},
}

func (d dialect) render(stmt string) string {
	return strings.NewReplacer("{{serial}}", d.serial, "{{blob}}", d.blob).Replace(stmt)
}

// migrate applies pending migrations and returns the resulting version.
func migrate(ctx context.Context, conn *sql.DB, d dialect) (int, error) {
	_, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err = conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return current, fmt.Errorf("begin migration %d: %w", version, err)
		}

		for _, stmt := range splitStatements(d.render(migrations[i])) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return current, fmt.Errorf("migration %d: %w", version, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`,
			version, time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			_ = tx.Rollback()
			return current, fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return current, fmt.Errorf("commit migration %d: %w", version, err)
		}
		current = version
	}

	return current, nil
}

func splitStatements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
