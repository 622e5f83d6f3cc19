package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veridocs/veridocs/internal/model"
)

// Logger emits structured audit events, one method per action. Every method
// requires an explicit query_id; an empty one is an AuditError before any
// sink call is attempted. Inserts are synchronous; correctness dominates
// throughput.
type Logger struct {
	sink         Sink
	defaultActor string
	modelVersion string
	indexVersion string
	logger       *slog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithModelVersion stamps events with the embedding model identifier.
func WithModelVersion(v string) Option {
	return func(l *Logger) { l.modelVersion = v }
}

// WithIndexVersion stamps events with the search index identifier.
func WithIndexVersion(v string) Option {
	return func(l *Logger) { l.indexVersion = v }
}

// New creates a Logger writing to the given sink. defaultActor is used when
// the context carries no user.
func New(sink Sink, defaultActor string, logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		sink:         sink,
		defaultActor: defaultActor,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Logger) actorFor(actx model.AuthorityContext) string {
	if actx.User != "" {
		return actx.User
	}
	return l.defaultActor
}

// emit builds and inserts one event. details always carries query_id,
// timestamp, and a by-value context snapshot before the action-specific
// fields are merged in.
func (l *Logger) emit(ctx context.Context, action model.Action, actx model.AuthorityContext, queryID string, documentID *string, extra map[string]any) error {
	if queryID == "" {
		return &model.AuditError{Err: errors.New("audit: query_id is required for " + string(action))}
	}

	now := time.Now().UTC()
	details := map[string]any{
		"query_id":  queryID,
		"timestamp": now.Format(time.RFC3339Nano),
		"context":   actx.Snapshot(),
	}
	for k, v := range extra {
		details[k] = v
	}

	ev := model.AuditEvent{
		ID:         uuid.New(),
		Actor:      l.actorFor(actx),
		Action:     action,
		DocumentID: documentID,
		Details:    details,
		CreatedAt:  now,
	}
	if l.modelVersion != "" {
		ev.ModelVersion = &l.modelVersion
	}
	if l.indexVersion != "" {
		ev.IndexVersion = &l.indexVersion
	}

	if err := l.sink.Insert(ctx, ev); err != nil {
		l.logger.Error("audit insert failed", "action", action, "query_id", queryID, "error", err)
		return &model.AuditError{Err: err}
	}
	return nil
}

// QueryReceived records the arrival of a query at the orchestrator.
func (l *Logger) QueryReceived(ctx context.Context, actx model.AuthorityContext, queryID, query string, topK int) error {
	return l.emit(ctx, model.ActionQueryReceived, actx, queryID, nil, map[string]any{
		"outcome": map[string]any{"query": query, "top_k": topK},
	})
}

// SearchQuery records the query text about to be dispatched to backends.
func (l *Logger) SearchQuery(ctx context.Context, actx model.AuthorityContext, queryID, query string) error {
	return l.emit(ctx, model.ActionSearchQuery, actx, queryID, nil, map[string]any{
		"query": query,
	})
}

// SearchExecuted records per-backend hit counts after the parallel fan-out.
func (l *Logger) SearchExecuted(ctx context.Context, actx model.AuthorityContext, queryID string, lexicalCount, semanticCount int) error {
	return l.emit(ctx, model.ActionSearchExecuted, actx, queryID, nil, map[string]any{
		"outcome": map[string]any{"lexical_count": lexicalCount, "semantic_count": semanticCount},
	})
}

// AuthzAllow records a per-document ALLOW decision.
func (l *Logger) AuthzAllow(ctx context.Context, actx model.AuthorityContext, queryID string, decision model.AccessDecision) error {
	docID := decision.DocumentID
	return l.emit(ctx, model.ActionAuthzAllow, actx, queryID, &docID, map[string]any{
		"decision":         decision.Outcome(),
		"matched_rule_ids": decision.MatchedRuleIDs,
	})
}

// AuthzDeny records a per-document DENY decision with its reasons.
func (l *Logger) AuthzDeny(ctx context.Context, actx model.AuthorityContext, queryID string, decision model.AccessDecision) error {
	docID := decision.DocumentID
	return l.emit(ctx, model.ActionAuthzDeny, actx, queryID, &docID, map[string]any{
		"decision": decision.Outcome(),
		"reasons":  decision.Reasons,
	})
}

// AuthorityEvaluated records aggregate counts after the authority filter.
func (l *Logger) AuthorityEvaluated(ctx context.Context, actx model.AuthorityContext, queryID string, evaluated, denied, allowed int) error {
	return l.emit(ctx, model.ActionAuthorityEvaluated, actx, queryID, nil, map[string]any{
		"outcome": map[string]any{"evaluated": evaluated, "denied": denied, "allowed": allowed},
	})
}

// ResultsFiltered records candidate counts in and out of the filter stage.
func (l *Logger) ResultsFiltered(ctx context.Context, actx model.AuthorityContext, queryID string, input, returned int) error {
	return l.emit(ctx, model.ActionResultsFiltered, actx, queryID, nil, map[string]any{
		"outcome": map[string]any{"input": input, "returned": returned},
	})
}

// SearchResultsReturned records the final result count and document ids.
func (l *Logger) SearchResultsReturned(ctx context.Context, actx model.AuthorityContext, queryID string, count int, documentIDs []string) error {
	return l.emit(ctx, model.ActionSearchResultsReturned, actx, queryID, nil, map[string]any{
		"result_count": count,
		"document_ids": documentIDs,
	})
}

// ResponseReturned records that a response left the orchestrator.
func (l *Logger) ResponseReturned(ctx context.Context, actx model.AuthorityContext, queryID string, count int) error {
	return l.emit(ctx, model.ActionResponseReturned, actx, queryID, nil, map[string]any{
		"outcome": map[string]any{"count": count},
	})
}
