package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries the logs table with plainto_tsquery and ts_rank, using
// ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "fts @@ plainto_tsquery('simple', $1)"
	if !q.IncludeArchived {
		where += " AND NOT archived"
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM logs WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT id, COALESCE(title, ''),
			ts_headline('simple', message, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			author, archived
		FROM logs
		WHERE %s
		ORDER BY ts_rank(fts, plainto_tsquery('simple', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Author, &r.Archived); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all indexable posts for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]LogRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, COALESCE(title, ''), message, author, archived
		FROM logs
	`)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	defer rows.Close()

	records := make([]LogRecord, 0)
	for rows.Next() {
		var rec LogRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Message, &rec.Author, &rec.Archived); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return records, nil
}
