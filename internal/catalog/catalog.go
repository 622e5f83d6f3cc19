package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veridocs/veridocs/internal/model"
)

// ErrChunkNotFound is returned when chunk lineage cannot be resolved.
var ErrChunkNotFound = errors.New("catalog: chunk not found")

// FetchDocumentsWithRules returns the documents ⋈ access_rules left join as
// flat rows. Documents without rules appear once with nil rule columns; no
// policy filtering happens here. When docIDs is empty the whole catalog is
// returned (used by AllowedDocumentIDs).
func (db *DB) FetchDocumentsWithRules(ctx context.Context, docIDs []string) ([]model.CatalogRow, error) {
	query := `
		SELECT
		    d.document_id,
		    d.authority_level,
		    ar.rule_id,
		    ar.project_code,
		    ar.discipline,
		    ar.classification,
		    ar.commercial_sensitivity,
		    ar.allowed_roles
		FROM documents d
		LEFT JOIN access_rules ar ON ar.document_id = d.document_id`

	var (
		rows pgx.Rows
		err  error
	)
	if len(docIDs) > 0 {
		rows, err = db.pool.Query(ctx, query+`
		WHERE d.document_id = ANY($1)
		ORDER BY d.document_id, ar.rule_id`, docIDs)
	} else {
		rows, err = db.pool.Query(ctx, query+`
		ORDER BY d.document_id, ar.rule_id`)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch documents with rules: %w", err)
	}
	defer rows.Close()

	var out []model.CatalogRow
	for rows.Next() {
		var r model.CatalogRow
		if err := rows.Scan(
			&r.DocumentID,
			&r.AuthorityLevel,
			&r.RuleID,
			&r.RuleProjectCode,
			&r.RuleDiscipline,
			&r.RuleClassification,
			&r.RuleCommercialSens,
			&r.RuleAllowedRoles,
		); err != nil {
			return nil, fmt.Errorf("catalog: scan catalog row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate catalog rows: %w", err)
	}
	return out, nil
}

// GetChunkWithDocument resolves chunk lineage via chunks ⋈ artefacts ⋈
// document_versions. Used to hydrate content and document identity for
// candidates the backends returned without a full payload.
func (db *DB) GetChunkWithDocument(ctx context.Context, chunkID string) (model.ChunkLineage, error) {
	var lineage model.ChunkLineage
	err := db.pool.QueryRow(ctx, `
		SELECT c.chunk_id, c.content, c.artefact_id, dv.document_id
		FROM chunks c
		JOIN artefacts a ON c.artefact_id = a.artefact_id
		JOIN document_versions dv ON a.version_id = dv.version_id
		WHERE c.chunk_id = $1`,
		chunkID,
	).Scan(&lineage.ChunkID, &lineage.Content, &lineage.ArtefactID, &lineage.DocumentID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChunkLineage{}, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	if err != nil {
		return model.ChunkLineage{}, fmt.Errorf("catalog: get chunk %s: %w", chunkID, err)
	}
	return lineage, nil
}
