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

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across cards, posts, and files
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
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

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCard {
		where := "c.fts @@ " + tsQuery
		if q.FilterProjectID != 0 {
			where += fmt.Sprintf(" AND c.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'card'::text AS type, c.id::text, c.title,
				ts_headline('english', coalesce(c.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				c.project_id,
				ts_rank(c.fts, %s) AS rank
			FROM cards c
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultPost {
		where := "p.fts @@ " + tsQuery
		if q.FilterProjectID != 0 {
			where += fmt.Sprintf(" AND p.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'post'::text AS type, p.id::text, p.title,
				ts_headline('english', coalesce(p.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				p.project_id,
				ts_rank(p.fts, %s) AS rank
			FROM posts p
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if q.FilterType == "" || q.FilterType == ResultFile {
		where := "f.fts @@ " + tsQuery
		if q.FilterProjectID != 0 {
			where += fmt.Sprintf(" AND f.project_id = $%d", argN)
			args = append(args, q.FilterProjectID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'file'::text AS type, f.id::text, f.filename AS title,
				''::text AS snippet,
				f.project_id,
				ts_rank(f.fts, %s) AS rank
			FROM files f
			WHERE %s`, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, project_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.ProjectID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CardRecord, []PostRecord, []FileRecord, error) {
	cardRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, coalesce(content, ''), project_id FROM cards
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load cards: %w", err)
	}
	defer cardRows.Close()

	cards := make([]CardRecord, 0)
	for cardRows.Next() {
		var c CardRecord
		if err := cardRows.Scan(&c.ID, &c.Title, &c.Content, &c.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	if err := cardRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate cards: %w", err)
	}

	postRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, title, coalesce(content, ''), project_id FROM posts
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load posts: %w", err)
	}
	defer postRows.Close()

	posts := make([]PostRecord, 0)
	for postRows.Next() {
		var pr PostRecord
		if err := postRows.Scan(&pr.ID, &pr.Title, &pr.Content, &pr.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, pr)
	}
	if err := postRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate posts: %w", err)
	}

	fileRows, err := p.db.QueryContext(ctx, `
		SELECT id::text, filename, project_id FROM files
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load files: %w", err)
	}
	defer fileRows.Close()

	files := make([]FileRecord, 0)
	for fileRows.Next() {
		var f FileRecord
		if err := fileRows.Scan(&f.ID, &f.Filename, &f.ProjectID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := fileRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate files: %w", err)
	}

	return cards, posts, files, nil
}
