package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridocs/veridocs/internal/integrity"
	"github.com/veridocs/veridocs/internal/model"
)

// PostgresSink writes audit events to the append-only audit_log table. It
// also implements ProofSink for Merkle batch proofs over event hashes.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a sink on an existing connection pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Insert appends one event. The content hash is computed over the exact
// details bytes stored, so later verification recomputes byte-for-byte.
func (s *PostgresSink) Insert(ctx context.Context, ev model.AuditEvent) error {
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}

	hash := integrity.ComputeEventHash(ev.ID, ev.Actor, string(ev.Action), detailsJSON, ev.CreatedAt)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (
		    id, actor, action, document_id, version_id,
		    model_version, index_version, details, content_hash, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)`,
		ev.ID, ev.Actor, string(ev.Action), ev.DocumentID, ev.VersionID,
		ev.ModelVersion, ev.IndexVersion, detailsJSON, hash, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// EventsByQueryID returns all events for a query_id in insertion order.
func (s *PostgresSink) EventsByQueryID(ctx context.Context, queryID string) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, actor, action, document_id, version_id,
		       model_version, index_version, details, content_hash, created_at
		FROM audit_log
		WHERE details->>'query_id' = $1
		ORDER BY seq`,
		queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query events: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var (
			ev          model.AuditEvent
			action      string
			detailsJSON []byte
		)
		if err := rows.Scan(
			&ev.ID, &ev.Actor, &action, &ev.DocumentID, &ev.VersionID,
			&ev.ModelVersion, &ev.IndexVersion, &detailsJSON, &ev.ContentHash, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		ev.Action = model.Action(action)
		if err := json.Unmarshal(detailsJSON, &ev.Details); err != nil {
			return nil, fmt.Errorf("audit: unmarshal details: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return out, nil
}

// EventHashesForBatch returns event content hashes in (batchStart, batchEnd],
// pre-sorted lexicographically for deterministic Merkle construction.
func (s *PostgresSink) EventHashesForBatch(ctx context.Context, batchStart, batchEnd time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT content_hash
		FROM audit_log
		WHERE created_at > $1 AND created_at <= $2
		ORDER BY content_hash ASC`,
		batchStart, batchEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("audit: query batch hashes: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("audit: scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// LatestProof returns the most recent batch proof, or nil if none exists.
func (s *PostgresSink) LatestProof(ctx context.Context) (*Proof, error) {
	var p Proof
	err := s.pool.QueryRow(ctx, `
		SELECT id, batch_start, batch_end, event_count, root_hash, previous_root, created_at
		FROM audit_proofs
		ORDER BY id DESC
		LIMIT 1`,
	).Scan(&p.ID, &p.BatchStart, &p.BatchEnd, &p.EventCount, &p.RootHash, &p.PrevRoot, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: latest proof: %w", err)
	}
	return &p, nil
}

// InsertProof appends a batch proof.
func (s *PostgresSink) InsertProof(ctx context.Context, p Proof) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_proofs (batch_start, batch_end, event_count, root_hash, previous_root, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.BatchStart, p.BatchEnd, p.EventCount, p.RootHash, p.PrevRoot, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert proof: %w", err)
	}
	return nil
}
