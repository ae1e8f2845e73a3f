package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
)

// PGProcedures calls the ranking and trend functions installed by Migrate.
type PGProcedures struct {
	db *sql.DB
}

func NewPGProcedures(db *sql.DB) *PGProcedures {
	return &PGProcedures{db: db}
}

func (p *PGProcedures) RankStories(ctx context.Context, w period.Window, limit int) ([]analytics.StorySummary, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT story_id, story_title, read_count, unique_readers FROM get_top_stories($1::interval, $2)`,
		strconv.Itoa(w.Days)+" days", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("calling get_top_stories: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.StorySummary, 0, limit)
	for rows.Next() {
		var s analytics.StorySummary
		if err := rows.Scan(&s.ID, &s.Title, &s.ReadCount, &s.UniqueReaders); err != nil {
			return nil, fmt.Errorf("scanning ranked story: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PGProcedures) Trend(ctx context.Context, storyID int64, w period.Window) ([]analytics.TimeSeriesPoint, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if storyID == 0 {
		rows, err = p.db.QueryContext(ctx,
			`SELECT bucket_date, reads, unique_readers FROM get_time_series_data($1)`, w.Days)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT bucket_date, reads, unique_readers FROM get_story_read_trend($1, $2)`, storyID, w.Days)
	}
	if err != nil {
		return nil, fmt.Errorf("calling trend procedure: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.TimeSeriesPoint, 0, w.Days)
	for rows.Next() {
		var pt analytics.TimeSeriesPoint
		if err := rows.Scan(&pt.Date, &pt.Reads, &pt.UniqueReaders); err != nil {
			return nil, fmt.Errorf("scanning trend point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// Installed reports which of the delegated functions exist in the current
// database.
func (p *PGProcedures) Installed(ctx context.Context) (map[string]bool, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT proname FROM pg_proc WHERE proname = ANY($1)`, pq.Array(ProcedureNames))
	if err != nil {
		return nil, fmt.Errorf("listing procedures: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ProcedureNames))
	for _, name := range ProcedureNames {
		found[name] = false
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning procedure name: %w", err)
		}
		found[name] = true
	}
	return found, rows.Err()
}
