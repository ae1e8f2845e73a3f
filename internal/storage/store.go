// Package storage implements the Catalog and Event Store over database/sql
// for Postgres (lib/pq) and sqlite (modernc.org/sqlite), plus the delegated
// Postgres ranking procedures.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/errors"
)

// pgForeignKeyViolation is the SQLSTATE raised when story_reads.story_id no
// longer references a story.
const pgForeignKeyViolation = "23503"

// SQLStore is both the analytics.EventStore and the analytics.Catalog.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *slog.Logger
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.Default().With("component", "sql-store", "dialect", string(dialect)),
	}
}

func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) DB() *sql.DB { return s.db }

func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// InsertRead appends a read event stamped with the current time. Failures are
// reported as DATABASE_ERROR.
func (s *SQLStore) InsertRead(ctx context.Context, e analytics.ReadEvent) (analytics.ReadEvent, error) {
	e.ReadAt = s.now().UTC()
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO story_reads (story_id, user_identifier, read_at, user_agent, referrer)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		e.StoryID, e.UserIdentifier, s.dialect.timeArg(e.ReadAt), nullableString(e.UserAgent), nullableString(e.Referrer),
	).Scan(&e.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return analytics.ReadEvent{}, apperrors.Wrap(apperrors.ErrDatabase, err,
				fmt.Sprintf("story %d no longer exists", e.StoryID))
		}
		return analytics.ReadEvent{}, apperrors.Wrap(apperrors.ErrDatabase, err, "failed to record read event")
	}
	return e, nil
}

func (s *SQLStore) CountReads(ctx context.Context, f analytics.Filter) (int64, error) {
	where, args := s.where(f, "")
	return s.count(ctx, "counting reads", `SELECT COUNT(*) FROM story_reads`+where, args...)
}

func (s *SQLStore) CountUniqueReaders(ctx context.Context, f analytics.Filter) (int64, error) {
	where, args := s.where(f, "")
	return s.count(ctx, "counting unique readers", `SELECT COUNT(DISTINCT user_identifier) FROM story_reads`+where, args...)
}

func (s *SQLStore) ReadBounds(ctx context.Context, f analytics.Filter) (*time.Time, *time.Time, error) {
	where, args := s.where(f, "")
	var minAt, maxAt sql.NullString
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT MIN(read_at), MAX(read_at) FROM story_reads`+where), args...,
	).Scan(&minAt, &maxAt)
	if err != nil {
		return nil, nil, fmt.Errorf("querying read bounds: %w", err)
	}
	first, err := parseNullTime(minAt)
	if err != nil {
		return nil, nil, err
	}
	last, err := parseNullTime(maxAt)
	if err != nil {
		return nil, nil, err
	}
	return first, last, nil
}

func (s *SQLStore) ReadsWithTitles(ctx context.Context, f analytics.Filter) ([]analytics.TitledRead, error) {
	where, args := s.where(f, "r.")
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT r.story_id, s.title, r.user_identifier
		FROM story_reads r
		JOIN stories s ON s.id = r.story_id`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("querying titled reads: %w", err)
	}
	defer rows.Close()

	var out []analytics.TitledRead
	for rows.Next() {
		var r analytics.TitledRead
		if err := rows.Scan(&r.StoryID, &r.Title, &r.UserIdentifier); err != nil {
			return nil, fmt.Errorf("scanning titled read: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Referrers(ctx context.Context, f analytics.Filter) ([]string, error) {
	where, args := s.where(f, "")
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT COALESCE(referrer, '') FROM story_reads`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("querying referrers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning referrer: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReaderReads(ctx context.Context, f analytics.Filter) ([]analytics.ReaderRead, error) {
	where, args := s.where(f, "")
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		`SELECT user_identifier, read_at FROM story_reads`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("querying reader reads: %w", err)
	}
	defer rows.Close()

	var out []analytics.ReaderRead
	for rows.Next() {
		var (
			r  analytics.ReaderRead
			at string
		)
		if err := rows.Scan(&r.UserIdentifier, &at); err != nil {
			return nil, fmt.Errorf("scanning reader read: %w", err)
		}
		if r.ReadAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListReads returns every read event in id order.
func (s *SQLStore) ListReads(ctx context.Context) ([]analytics.ReadEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, story_id, user_identifier, read_at, user_agent, referrer FROM story_reads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing reads: %w", err)
	}
	defer rows.Close()

	var out []analytics.ReadEvent
	for rows.Next() {
		var (
			e                   analytics.ReadEvent
			at                  string
			userAgent, referrer sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.StoryID, &e.UserIdentifier, &at, &userAgent, &referrer); err != nil {
			return nil, fmt.Errorf("scanning read: %w", err)
		}
		if e.ReadAt, err = parseTime(at); err != nil {
			return nil, err
		}
		e.UserAgent, e.Referrer = stringPtr(userAgent), stringPtr(referrer)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteRead removes one read event. Only the verify probe uses it.
func (s *SQLStore) DeleteRead(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`DELETE FROM story_reads WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting read %d: %w", id, err)
	}
	return nil
}

func (s *SQLStore) CountStories(ctx context.Context) (int64, error) {
	return s.count(ctx, "counting stories", `SELECT COUNT(*) FROM stories`)
}

func (s *SQLStore) GetStory(ctx context.Context, id int64) (*analytics.Story, error) {
	var (
		story   analytics.Story
		created string
	)
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, title, filename, content, created_at FROM stories WHERE id = ?`), id,
	).Scan(&story.ID, &story.Title, &story.Filename, &story.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("story %d: %w", id, apperrors.ErrStoryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying story %d: %w", id, err)
	}
	if story.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &story, nil
}

func (s *SQLStore) StoryExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM stories WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking story %d: %w", id, err)
	}
	return true, nil
}

func (s *SQLStore) CreateStory(ctx context.Context, ns analytics.NewStory) (*analytics.Story, error) {
	story := analytics.Story{
		Title:     ns.Title,
		Filename:  ns.Filename,
		Content:   ns.Content,
		CreatedAt: s.now().UTC(),
	}
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO stories (title, filename, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		story.Title, story.Filename, story.Content, s.dialect.timeArg(story.CreatedAt),
	).Scan(&story.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting story %q: %w", ns.Title, err)
	}
	s.logger.Info("story created", "story_id", story.ID, "filename", story.Filename)
	return &story, nil
}

// ListStories returns the catalog in id order.
func (s *SQLStore) ListStories(ctx context.Context) ([]analytics.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, filename, content, created_at FROM stories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	var out []analytics.Story
	for rows.Next() {
		var (
			story   analytics.Story
			created string
		)
		if err := rows.Scan(&story.ID, &story.Title, &story.Filename, &story.Content, &created); err != nil {
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		if story.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, story)
	}
	return out, rows.Err()
}

func (s *SQLStore) count(ctx context.Context, what, query string, args ...any) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return n, nil
}

// where renders f as a WHERE clause with ? placeholders. prefix qualifies
// the story_reads columns, e.g. "r.".
func (s *SQLStore) where(f analytics.Filter, prefix string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.StoryID != 0 {
		conds = append(conds, prefix+"story_id = ?")
		args = append(args, f.StoryID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, prefix+"read_at >= ?")
		args = append(args, s.dialect.timeArg(f.Since))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgForeignKeyViolation
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
