// Package search provides the two retrieval backends behind hybrid search:
// lexical full-text search in Postgres and semantic vector search in Qdrant,
// with a pgvector fallback for deployments without a Qdrant cluster.
package search

import "context"

// Hit is one raw backend match. Score is the backend-native relevance value
// (ts_rank for lexical, cosine similarity for semantic); the orchestrator
// normalizes per source before fusing. Content may be empty for vector hits,
// in which case the orchestrator hydrates it from the catalog.
type Hit struct {
	ChunkID    string
	DocumentID string
	ArtefactID string
	Content    string
	Score      float64
}

// LexicalSearcher runs keyword retrieval over chunk text.
// Implementations must be safe for concurrent use.
type LexicalSearcher interface {
	// SearchLexical returns chunks matching the query text. When allowedDocs
	// is non-nil, results are restricted to those document IDs; an empty
	// non-nil slice returns no hits.
	SearchLexical(ctx context.Context, query string, allowedDocs []string, limit int) ([]Hit, error)
}

// VectorSearcher runs approximate nearest-neighbor retrieval over chunk
// embeddings. Implementations must be safe for concurrent use.
type VectorSearcher interface {
	// SearchVector returns chunks nearest to the query embedding, with the
	// same allowedDocs semantics as SearchLexical.
	SearchVector(ctx context.Context, embedding []float32, allowedDocs []string, limit int) ([]Hit, error)

	// Healthy returns nil if the index is reachable, or an error describing
	// the problem.
	Healthy(ctx context.Context) error
}
