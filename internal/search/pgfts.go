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

// Search executes a UNION ALL query across content_blocks and proposals
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

	if q.FilterType == "" || q.FilterType == ResultBlock {
		blockWhere := "b.fts @@ " + tsQuery + " AND b.is_deleted = FALSE"
		if q.FilterSectionType != "" {
			blockWhere += fmt.Sprintf(" AND b.section_type = $%d", argN)
			args = append(args, q.FilterSectionType)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'block'::text AS type, b.id, b.title,
				ts_headline('english', coalesce(b.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				b.section_type AS section_type,
				''::text AS client_name,
				ts_rank(b.fts, %s) AS rank
			FROM content_blocks b
			WHERE %s`, tsQuery, tsQuery, blockWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultProposal {
		propWhere := "p.fts @@ " + tsQuery + " AND p.is_archived = FALSE"
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'proposal'::text AS type, p.id, p.name AS title,
				ts_headline('english', coalesce(p.rfp_context, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS section_type,
				p.client_name,
				ts_rank(p.fts, %s) AS rank
			FROM proposals p
			WHERE %s`, tsQuery, tsQuery, propWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, section_type, client_name
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SectionType, &r.ClientName); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]BlockRecord, []ProposalRecord, error) {
	blockRows, err := p.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.content, b.section_type,
			COALESCE(string_agg(t.name, ','), '')
		FROM content_blocks b
		LEFT JOIN content_block_tags bt ON bt.block_id = b.id
		LEFT JOIN tags t ON t.id = bt.tag_id
		WHERE b.is_deleted = FALSE
		GROUP BY b.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load blocks: %w", err)
	}
	defer blockRows.Close()

	blocks := make([]BlockRecord, 0)
	for blockRows.Next() {
		var b BlockRecord
		var tagNames string
		if err := blockRows.Scan(&b.ID, &b.Title, &b.Body, &b.SectionType, &tagNames); err != nil {
			return nil, nil, fmt.Errorf("scan block: %w", err)
		}
		if tagNames != "" {
			b.Tags = strings.Split(tagNames, ",")
		}
		blocks = append(blocks, b)
	}
	if err := blockRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate blocks: %w", err)
	}

	proposalRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, client_name, rfp_context, status
		FROM proposals
		WHERE is_archived = FALSE
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load proposals: %w", err)
	}
	defer proposalRows.Close()

	proposals := make([]ProposalRecord, 0)
	for proposalRows.Next() {
		var pr ProposalRecord
		if err := proposalRows.Scan(&pr.ID, &pr.Name, &pr.ClientName, &pr.RFPContext, &pr.Status); err != nil {
			return nil, nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, pr)
	}
	if err := proposalRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate proposals: %w", err)
	}

	return blocks, proposals, nil
}
