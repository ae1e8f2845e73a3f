package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/postgres"
)

var postgresTables = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id         BIGSERIAL PRIMARY KEY,
		title      TEXT NOT NULL,
		filename   TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS story_reads (
		id              BIGSERIAL PRIMARY KEY,
		story_id        BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		user_identifier VARCHAR(255) NOT NULL,
		read_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		user_agent      TEXT,
		referrer        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_story_reads_read_at ON story_reads (read_at)`,
	`CREATE INDEX IF NOT EXISTS idx_story_reads_story_read_at ON story_reads (story_id, read_at)`,
}

// postgresProcedures are the delegated ranking and trend functions. Days are
// bucketed in the database's time zone, oldest first, with empty days kept.
var postgresProcedures = []string{
	`CREATE OR REPLACE FUNCTION get_top_stories(p_interval INTERVAL, p_limit INT)
	RETURNS TABLE (story_id BIGINT, story_title TEXT, read_count BIGINT, unique_readers BIGINT)
	LANGUAGE sql STABLE AS $$
		SELECT s.id, s.title, COUNT(r.id), COUNT(DISTINCT r.user_identifier)
		FROM stories s
		JOIN story_reads r ON r.story_id = s.id
		WHERE r.read_at >= NOW() - p_interval
		GROUP BY s.id, s.title
		ORDER BY COUNT(r.id) DESC, s.id ASC
		LIMIT p_limit
	$$`,
	`CREATE OR REPLACE FUNCTION get_time_series_data(p_days INT)
	RETURNS TABLE (bucket_date TEXT, reads BIGINT, unique_readers BIGINT)
	LANGUAGE sql STABLE AS $$
		SELECT to_char(d.day, 'YYYY-MM-DD'), COUNT(r.id), COUNT(DISTINCT r.user_identifier)
		FROM generate_series(CURRENT_DATE - (p_days - 1), CURRENT_DATE, INTERVAL '1 day') AS d(day)
		LEFT JOIN story_reads r
			ON r.read_at >= d.day AND r.read_at < d.day + INTERVAL '1 day'
		GROUP BY d.day
		ORDER BY d.day
	$$`,
	`CREATE OR REPLACE FUNCTION get_story_read_trend(p_story_id BIGINT, p_days INT)
	RETURNS TABLE (bucket_date TEXT, reads BIGINT, unique_readers BIGINT)
	LANGUAGE sql STABLE AS $$
		SELECT to_char(d.day, 'YYYY-MM-DD'), COUNT(r.id), COUNT(DISTINCT r.user_identifier)
		FROM generate_series(CURRENT_DATE - (p_days - 1), CURRENT_DATE, INTERVAL '1 day') AS d(day)
		LEFT JOIN story_reads r
			ON r.story_id = p_story_id
			AND r.read_at >= d.day AND r.read_at < d.day + INTERVAL '1 day'
		GROUP BY d.day
		ORDER BY d.day
	$$`,
}

var sqliteTables = []string{
	`CREATE TABLE IF NOT EXISTS stories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		title      TEXT NOT NULL,
		filename   TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS story_reads (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		story_id        INTEGER NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		user_identifier TEXT NOT NULL CHECK (length(user_identifier) <= 255),
		read_at         TEXT NOT NULL,
		user_agent      TEXT,
		referrer        TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_story_reads_read_at ON story_reads (read_at)`,
	`CREATE INDEX IF NOT EXISTS idx_story_reads_story_read_at ON story_reads (story_id, read_at)`,
}

// ProcedureNames lists the delegated functions installed on Postgres.
var ProcedureNames = []string{"get_top_stories", "get_time_series_data", "get_story_read_trend"}

// Migrate creates the tables and indexes, and on Postgres the delegated
// procedures, inside one transaction. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	statements := sqliteTables
	if dialect == Postgres {
		statements = append(append([]string{}, postgresTables...), postgresProcedures...)
	}
	err := postgres.InTx(ctx, db, func(tx *sql.Tx) error {
		for i, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrating %s schema: %w", dialect, err)
	}
	slog.Default().With("component", "storage").Info("schema migrated",
		"dialect", dialect,
		"statements", len(statements),
	)
	return nil
}
