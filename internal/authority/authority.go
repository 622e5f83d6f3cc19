// Package authority decides document access. Decisions are deterministic
// functions of (context, document, rules); every decision is recorded in the
// audit log, and an audit write failure aborts the caller's query.
package authority

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/model"
	"github.com/veridocs/veridocs/internal/policy"
)

// CatalogReader is the slice of the catalog the engine needs.
type CatalogReader interface {
	FetchDocumentsWithRules(ctx context.Context, docIDs []string) ([]model.CatalogRow, error)
}

// Engine evaluates access decisions against the document catalog. Stateless;
// memoization across a query belongs to the orchestrator.
type Engine struct {
	catalog CatalogReader
	audit   *audit.Logger
	logger  *slog.Logger
}

// New creates an authority engine.
func New(catalog CatalogReader, auditLogger *audit.Logger, logger *slog.Logger) *Engine {
	return &Engine{catalog: catalog, audit: auditLogger, logger: logger}
}

// groupRows folds the flat join rows into per-document views, preserving the
// rule_id ordering of the query. Rows with a nil rule_id come from documents
// without rules and contribute no rule.
func groupRows(rows []model.CatalogRow) map[string]model.Document {
	docs := make(map[string]model.Document)
	for _, r := range rows {
		doc, ok := docs[r.DocumentID]
		if !ok {
			doc = model.Document{ID: r.DocumentID, AuthorityLevel: r.AuthorityLevel}
		}
		if r.RuleID != nil {
			ruleID := *r.RuleID
			doc.Rules = append(doc.Rules, model.AccessRule{
				RuleID:                &ruleID,
				ProjectCode:           r.RuleProjectCode,
				Discipline:            r.RuleDiscipline,
				Classification:        r.RuleClassification,
				CommercialSensitivity: r.RuleCommercialSens,
				AllowedRoles:          r.RuleAllowedRoles,
			})
		}
		docs[r.DocumentID] = doc
	}
	return docs
}

// evaluate applies the per-document algorithm: catalog presence, authority
// level vocabulary, then OR over rules in rule_id order. found=false models a
// document absent from the catalog.
func evaluate(actx model.AuthorityContext, documentID string, doc model.Document, found bool) model.AccessDecision {
	deny := func(reasons ...string) model.AccessDecision {
		return model.AccessDecision{DocumentID: documentID, Allowed: false, Reasons: reasons}
	}

	if !found {
		return deny(model.ReasonDocumentNotFound)
	}
	if !model.NormalizeAuthorityLevel(doc.AuthorityLevel).Valid() {
		return deny(model.ReasonUnknownAuthority)
	}
	if len(doc.Rules) == 0 {
		return deny(model.ReasonNoAccessRules)
	}

	var mismatches []string
	for _, rule := range doc.Rules {
		matched, reason := policy.Match(rule, actx)
		if matched {
			return model.AccessDecision{
				DocumentID:     documentID,
				Allowed:        true,
				Reasons:        []string{model.ReasonRuleMatch},
				MatchedRuleIDs: []int64{*rule.RuleID},
			}
		}
		if reason != "" {
			mismatches = append(mismatches, fmt.Sprintf("rule_%d:%s", *rule.RuleID, reason))
		}
	}
	if len(mismatches) == 0 {
		return deny(model.ReasonNoRuleMatch)
	}
	return deny(mismatches...)
}

// record emits the AUTHZ_ALLOW or AUTHZ_DENY event for a decision. Any audit
// error propagates so the caller aborts.
func (e *Engine) record(ctx context.Context, actx model.AuthorityContext, queryID string, decision model.AccessDecision) error {
	if decision.Allowed {
		return e.audit.AuthzAllow(ctx, actx, queryID, decision)
	}
	return e.audit.AuthzDeny(ctx, actx, queryID, decision)
}

// EvaluateDocumentAccess decides access for a single document and records the
// decision in the audit log.
func (e *Engine) EvaluateDocumentAccess(ctx context.Context, actx model.AuthorityContext, documentID, queryID string) (model.AccessDecision, error) {
	rows, err := e.catalog.FetchDocumentsWithRules(ctx, []string{documentID})
	if err != nil {
		return model.AccessDecision{}, &model.BackendError{Backend: "catalog", Err: err}
	}

	docs := groupRows(rows)
	doc, found := docs[documentID]
	decision := evaluate(actx, documentID, doc, found)

	if err := e.record(ctx, actx, queryID, decision); err != nil {
		return model.AccessDecision{}, err
	}
	return decision, nil
}

// EvaluateBatch decides access for a set of documents with one catalog
// round-trip. Returns decisions keyed by document_id; every requested id is
// present, documents absent from the catalog deny with document_not_found.
func (e *Engine) EvaluateBatch(ctx context.Context, actx model.AuthorityContext, documentIDs []string, queryID string) (map[string]model.AccessDecision, error) {
	if len(documentIDs) == 0 {
		return map[string]model.AccessDecision{}, nil
	}

	rows, err := e.catalog.FetchDocumentsWithRules(ctx, documentIDs)
	if err != nil {
		return nil, &model.BackendError{Backend: "catalog", Err: err}
	}
	docs := groupRows(rows)

	decisions := make(map[string]model.AccessDecision, len(documentIDs))
	for _, id := range documentIDs {
		if _, dup := decisions[id]; dup {
			continue
		}
		doc, found := docs[id]
		decision := evaluate(actx, id, doc, found)
		if err := e.record(ctx, actx, queryID, decision); err != nil {
			return nil, err
		}
		decisions[id] = decision
	}
	return decisions, nil
}

// AllowedDocumentIDs returns the sorted set of catalog documents this context
// may access, recording AUTHZ_ALLOW or AUTHZ_DENY for every document it
// evaluates under the given queryID. Used to pre-filter retrieval backends so
// denied documents never become candidates.
func (e *Engine) AllowedDocumentIDs(ctx context.Context, actx model.AuthorityContext, queryID string) ([]string, error) {
	rows, err := e.catalog.FetchDocumentsWithRules(ctx, nil)
	if err != nil {
		return nil, &model.BackendError{Backend: "catalog", Err: err}
	}
	docs := groupRows(rows)

	// Evaluate in sorted order so the audit sequence is reproducible.
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	allowed := make([]string, 0, len(ids))
	for _, id := range ids {
		decision := evaluate(actx, id, docs[id], true)
		if err := e.record(ctx, actx, queryID, decision); err != nil {
			return nil, err
		}
		if decision.Allowed {
			allowed = append(allowed, id)
		}
	}
	return allowed, nil
}
