package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

// minRelevance keeps normalized scores strictly positive
const minRelevance = 1e-9

// SearchText runs a full-text query over message text, best matches first
func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	return searchText(ctx, s.readerDB, query, limit, filters)
}

func searchText(ctx context.Context, q querier, query string, limit int, filters *SearchFilters) ([]TextResult, error) {
	// Sanitize query for FTS5
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, types.ErrEmptyQuery
	}

	// Build query with filters
	sqlQuery := `
		SELECT
			m.id,
			m.role,
			snippet(messages_fts, 0, '[', ']', '...', 16) AS snippet,
			bm25(messages_fts) AS score,
			s.path, s.session_id, s.project, s.summary, s.updated_at
		FROM messages_fts
		INNER JOIN messages m ON m.id = messages_fts.rowid
		INNER JOIN sessions s ON s.id = m.session_pk
		WHERE messages_fts MATCH ?
	`
	args := []interface{}{sanitized}

	// Apply filters
	sqlQuery, args = applyTextFilters(sqlQuery, args, filters)

	// BM25 scores are negative, lower is better; newer sessions break ties
	sqlQuery += " ORDER BY score, s.updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectTextResults(rows)
}

// applyTextFilters adds WHERE clause filters for text search
func applyTextFilters(query string, args []interface{}, filters *SearchFilters) (string, []interface{}) {
	if filters == nil {
		return query, args
	}

	if filters.Project != "" {
		query += " AND s.project = ?"
		args = append(args, filters.Project)
	}

	if filters.PathPrefix != "" {
		query += ` AND s.path LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(filters.PathPrefix)+"%")
	}

	if filters.Role != "" {
		query += " AND m.role = ?"
		args = append(args, string(filters.Role))
	}

	return query, args
}

func collectTextResults(rows *sql.Rows) ([]TextResult, error) {
	results := make([]TextResult, 0)

	for rows.Next() {
		var result TextResult
		var role string
		var updatedAt int64
		err := rows.Scan(
			&result.MessageID, &role, &result.Snippet, &result.BM25Score,
			&result.Session.Path, &result.Session.SessionID, &result.Session.Project,
			&result.Session.Summary, &updatedAt,
		)
		if err != nil {
			return nil, err
		}
		result.Role = types.Role(role)
		result.Session.UpdatedAt = fromUnixNano(updatedAt)
		result.BM25Score = normalizeBM25(result.BM25Score)
		results = append(results, result)
	}

	return results, rows.Err()
}

// normalizeBM25 maps a raw FTS5 bm25 value (negative, more negative is a
// better match) onto (0, 1], preserving order.
func normalizeBM25(raw float64) float64 {
	mag := math.Abs(raw)
	score := mag / (1.0 + mag)
	if score < minRelevance {
		return minRelevance
	}
	return score
}

// sanitizeFTSQuery turns free text into an FTS5 query that matches every
// term. Each term is quoted so FTS5 operators and punctuation are literal;
// a trailing * keeps prefix matching.
func sanitizeFTSQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))

	for _, term := range terms {
		prefix := strings.HasSuffix(term, "*")
		term = strings.TrimRight(term, "*")
		if term == "" {
			continue
		}
		term = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
		if prefix {
			term += "*"
		}
		quoted = append(quoted, term)
	}

	return strings.Join(quoted, " ")
}

// escapeLike escapes LIKE wildcards so a path prefix matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
