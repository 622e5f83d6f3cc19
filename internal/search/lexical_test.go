package search

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridocs/veridocs/internal/catalog"
	"github.com/veridocs/veridocs/internal/testutil"
)

var testDB *catalog.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	code := setupAndRun(m, tc)
	tc.Terminate()
	os.Exit(code)
}

func setupAndRun(m *testing.M, tc *testutil.TestContainer) int {
	ctx := context.Background()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "search test: create DB: %v\n", err)
		return 1
	}
	defer testDB.Close()

	if err := seed(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "search test: seed: %v\n", err)
		return 1
	}

	return m.Run()
}

// vec384 builds a 384-dim embedding with the given leading components.
func vec384(vals ...float32) pgvector.Vector {
	out := make([]float32, 384)
	copy(out, vals)
	return pgvector.NewVector(out)
}

func seed(ctx context.Context) error {
	pool := testDB.Pool()
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO documents (document_id, authority_level) VALUES ($1, $2)`, []any{"DOC-X", "approved"}},
		{`INSERT INTO documents (document_id, authority_level) VALUES ($1, $2)`, []any{"DOC-Y", "approved"}},

		// DOC-X: a superseded version and a current one. Only current
		// version chunks are searchable.
		{`INSERT INTO document_versions (version_id, document_id, revision, is_current) VALUES ($1, $2, $3, $4)`,
			[]any{"VER-X0", "DOC-X", "r0", false}},
		{`INSERT INTO document_versions (version_id, document_id, revision, is_current) VALUES ($1, $2, $3, $4)`,
			[]any{"VER-X1", "DOC-X", "r1", true}},
		{`INSERT INTO document_versions (version_id, document_id, revision, is_current) VALUES ($1, $2, $3, $4)`,
			[]any{"VER-Y1", "DOC-Y", "r1", true}},

		{`INSERT INTO artefacts (artefact_id, version_id) VALUES ($1, $2)`, []any{"ART-X0", "VER-X0"}},
		{`INSERT INTO artefacts (artefact_id, version_id) VALUES ($1, $2)`, []any{"ART-X1", "VER-X1"}},
		{`INSERT INTO artefacts (artefact_id, version_id) VALUES ($1, $2)`, []any{"ART-Y1", "VER-Y1"}},

		{`INSERT INTO chunks (chunk_id, artefact_id, position, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
			[]any{"CHK-X0", "ART-X0", 0, "Flange bolt torque values, superseded revision.", vec384(1, 0)}},
		{`INSERT INTO chunks (chunk_id, artefact_id, position, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
			[]any{"CHK-X1", "ART-X1", 0, "Flange bolts shall be torqued to 180 Nm in three passes.", vec384(1, 0)}},
		{`INSERT INTO chunks (chunk_id, artefact_id, position, content, embedding) VALUES ($1, $2, $3, $4, $5)`,
			[]any{"CHK-X2", "ART-X1", 1, "Valve maintenance is scheduled every six months.", vec384(0, 1)}},
		// CHK-Y1 has no embedding: visible to lexical, excluded from vector.
		{`INSERT INTO chunks (chunk_id, artefact_id, position, content) VALUES ($1, $2, $3, $4)`,
			[]any{"CHK-Y1", "ART-Y1", 0, "Flange gasket selection for seawater service."}},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			return err
		}
	}
	return nil
}

func TestSearchLexical(t *testing.T) {
	idx := NewLexicalIndex(testDB.Pool(), testutil.TestLogger())

	hits, err := idx.SearchLexical(context.Background(), "flange", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "current-version flange chunks only")

	ids := []string{hits[0].ChunkID, hits[1].ChunkID}
	assert.Contains(t, ids, "CHK-X1")
	assert.Contains(t, ids, "CHK-Y1")
	assert.NotContains(t, ids, "CHK-X0", "superseded version excluded")
	for _, h := range hits {
		assert.Greater(t, h.Score, 0.0)
		assert.NotEmpty(t, h.DocumentID)
		assert.NotEmpty(t, h.Content)
	}
}

func TestSearchLexical_AllowedDocsFilter(t *testing.T) {
	idx := NewLexicalIndex(testDB.Pool(), testutil.TestLogger())

	hits, err := idx.SearchLexical(context.Background(), "flange", []string{"DOC-Y"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "CHK-Y1", hits[0].ChunkID)
}

func TestSearchLexical_EmptyAllowedDocsMeansNoHits(t *testing.T) {
	idx := NewLexicalIndex(testDB.Pool(), testutil.TestLogger())

	hits, err := idx.SearchLexical(context.Background(), "flange", []string{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchLexical_NoMatches(t *testing.T) {
	idx := NewLexicalIndex(testDB.Pool(), testutil.TestLogger())

	hits, err := idx.SearchLexical(context.Background(), "zirconium", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPgvectorSearch(t *testing.T) {
	idx := NewPgvectorIndex(testDB.Pool(), testutil.TestLogger())

	query := make([]float32, 384)
	query[0] = 1

	hits, err := idx.SearchVector(context.Background(), query, nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "chunks with embeddings on current versions")

	assert.Equal(t, "CHK-X1", hits[0].ChunkID, "closest vector first")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "CHK-X2", hits[1].ChunkID)
	assert.Less(t, hits[1].Score, hits[0].Score)
}

func TestPgvectorSearch_AllowedDocsFilter(t *testing.T) {
	idx := NewPgvectorIndex(testDB.Pool(), testutil.TestLogger())

	query := make([]float32, 384)
	query[0] = 1

	hits, err := idx.SearchVector(context.Background(), query, []string{"DOC-Y"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "DOC-Y chunk has no embedding")
}

func TestPgvectorHealthy(t *testing.T) {
	idx := NewPgvectorIndex(testDB.Pool(), testutil.TestLogger())
	require.NoError(t, idx.Healthy(context.Background()))
}
