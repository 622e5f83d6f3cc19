package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgvectorIndex implements VectorSearcher over the pgvector extension. Used
// as the semantic backend when no Qdrant cluster is configured; chunks and
// their embeddings then live in the same database.
type PgvectorIndex struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgvectorIndex creates a pgvector searcher on an existing connection pool.
func NewPgvectorIndex(pool *pgxpool.Pool, logger *slog.Logger) *PgvectorIndex {
	return &PgvectorIndex{pool: pool, logger: logger}
}

// SearchVector ranks chunks by cosine similarity. The <=> operator returns
// cosine distance, so similarity is 1 - distance.
func (p *PgvectorIndex) SearchVector(ctx context.Context, embedding []float32, allowedDocs []string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 50
	}
	if allowedDocs != nil && len(allowedDocs) == 0 {
		return nil, nil
	}

	sql := `
		SELECT c.chunk_id, dv.document_id, c.artefact_id, c.content,
		       (1 - (c.embedding <=> $1))::float8 AS similarity
		FROM chunks c
		JOIN artefacts a ON a.artefact_id = c.artefact_id
		JOIN document_versions dv ON dv.version_id = a.version_id
		WHERE dv.is_current
		  AND c.embedding IS NOT NULL`
	args := []any{pgvector.NewVector(embedding)}
	if allowedDocs != nil {
		sql += ` AND dv.document_id = ANY($2)`
		args = append(args, allowedDocs)
	}
	sql += fmt.Sprintf(` ORDER BY c.embedding <=> $1 ASC, c.chunk_id ASC LIMIT %d`, limit)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search: pgvector query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.ArtefactID, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("search: scan pgvector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: iterate pgvector hits: %w", err)
	}
	return hits, nil
}

// Healthy pings the underlying pool.
func (p *PgvectorIndex) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("search: pgvector unhealthy: %w", err)
	}
	return nil
}
