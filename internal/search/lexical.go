package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LexicalIndex implements LexicalSearcher over Postgres full-text search.
// Chunks carry a stored tsvector column with a GIN index, so ranking runs
// entirely inside the database.
type LexicalIndex struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLexicalIndex creates a lexical searcher on an existing connection pool.
func NewLexicalIndex(pool *pgxpool.Pool, logger *slog.Logger) *LexicalIndex {
	return &LexicalIndex{pool: pool, logger: logger}
}

// SearchLexical ranks chunks by ts_rank against a websearch-style query.
// websearch_to_tsquery accepts free-form user input without raising syntax
// errors, unlike to_tsquery.
func (l *LexicalIndex) SearchLexical(ctx context.Context, query string, allowedDocs []string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	if allowedDocs != nil && len(allowedDocs) == 0 {
		return nil, nil
	}

	sql := `
		SELECT c.chunk_id, dv.document_id, c.artefact_id, c.content,
		       ts_rank(c.content_tsv, websearch_to_tsquery('english', $1))::float8 AS rank
		FROM chunks c
		JOIN artefacts a ON a.artefact_id = c.artefact_id
		JOIN document_versions dv ON dv.version_id = a.version_id
		WHERE dv.is_current
		  AND c.content_tsv @@ websearch_to_tsquery('english', $1)`
	args := []any{query}
	if allowedDocs != nil {
		sql += ` AND dv.document_id = ANY($2)`
		args = append(args, allowedDocs)
	}
	sql += fmt.Sprintf(` ORDER BY rank DESC, c.chunk_id ASC LIMIT %d`, limit)

	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search: lexical query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.ArtefactID, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("search: scan lexical hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: iterate lexical hits: %w", err)
	}
	return hits, nil
}
