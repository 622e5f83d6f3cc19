package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/veridocs/veridocs/internal/integrity"
	"github.com/veridocs/veridocs/internal/model"
)

// SQLiteSink is an embedded audit sink for local and development use where
// no Postgres is available. Same append-only semantics and content hashing
// as the Postgres sink; no batch proofs.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and ensures the
// audit_log table exists. Use ":memory:" for an ephemeral sink.
func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite %s: %w", path, err)
	}
	// The modernc driver is not safe for concurrent writes over multiple
	// connections; serialize through one.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT NOT NULL,
			actor         TEXT NOT NULL,
			action        TEXT NOT NULL,
			document_id   TEXT,
			version_id    TEXT,
			model_version TEXT,
			index_version TEXT,
			details       TEXT NOT NULL,
			content_hash  TEXT NOT NULL,
			created_at    TIMESTAMP NOT NULL
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create sqlite audit_log: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Insert appends one event.
func (s *SQLiteSink) Insert(ctx context.Context, ev model.AuditEvent) error {
	detailsJSON, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}

	hash := integrity.ComputeEventHash(ev.ID, ev.Actor, string(ev.Action), detailsJSON, ev.CreatedAt)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (
		    id, actor, action, document_id, version_id,
		    model_version, index_version, details, content_hash, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.Actor, string(ev.Action), ev.DocumentID, ev.VersionID,
		ev.ModelVersion, ev.IndexVersion, string(detailsJSON), hash, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// EventsByQueryID returns all events for a query_id in insertion order.
func (s *SQLiteSink) EventsByQueryID(ctx context.Context, queryID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, document_id, version_id,
		       model_version, index_version, details, content_hash, created_at
		FROM audit_log
		WHERE json_extract(details, '$.query_id') = ?
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
			idStr       string
			action      string
			detailsJSON string
		)
		if err := rows.Scan(
			&idStr, &ev.Actor, &action, &ev.DocumentID, &ev.VersionID,
			&ev.ModelVersion, &ev.IndexVersion, &detailsJSON, &ev.ContentHash, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		if err := ev.ID.UnmarshalText([]byte(idStr)); err != nil {
			return nil, fmt.Errorf("audit: parse event id: %w", err)
		}
		ev.Action = model.Action(action)
		if err := json.Unmarshal([]byte(detailsJSON), &ev.Details); err != nil {
			return nil, fmt.Errorf("audit: unmarshal details: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate events: %w", err)
	}
	return out, nil
}

// Close shuts down the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
