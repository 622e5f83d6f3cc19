// Package audit records every externally observable decision of the
// retrieval core to an append-only sink. Writes are synchronous and
// fail-closed: a sink failure aborts the enclosing query rather than
// returning unaudited results.
package audit

import (
	"context"
	"time"

	"github.com/veridocs/veridocs/internal/model"
)

// Sink is an append-only store for audit events. Implementations must be
// safe for concurrent use.
type Sink interface {
	// Insert appends a single event. The sink computes and stores the
	// event's tamper-evident content hash.
	Insert(ctx context.Context, ev model.AuditEvent) error

	// EventsByQueryID returns all events correlated by query_id in
	// insertion order.
	EventsByQueryID(ctx context.Context, queryID string) ([]model.AuditEvent, error)
}

// Proof is a Merkle batch proof over audit event content hashes. Proofs are
// chained via PreviousRoot so removing or rewriting any historical batch is
// detectable.
type Proof struct {
	ID         int64
	BatchStart time.Time
	BatchEnd   time.Time
	EventCount int
	RootHash   string
	PrevRoot   *string
	CreatedAt  time.Time
}

// ProofSink is implemented by sinks that support tamper-evidence batch
// proofs (the Postgres sink). The proof loop in main type-asserts for it.
type ProofSink interface {
	Sink

	// EventHashesForBatch returns content hashes of events created in
	// (batchStart, batchEnd], sorted lexicographically for deterministic
	// Merkle construction.
	EventHashesForBatch(ctx context.Context, batchStart, batchEnd time.Time) ([]string, error)

	// LatestProof returns the most recent proof, or nil if none exists.
	LatestProof(ctx context.Context) (*Proof, error)

	// InsertProof appends a batch proof.
	InsertProof(ctx context.Context, p Proof) error
}
