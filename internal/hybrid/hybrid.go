// Package hybrid implements the search orchestrator: parallel lexical and
// semantic retrieval, per-source score normalization, merge by chunk id,
// authority filtering, hydration, equal-weight ranking, and per-result
// explanations, with a fail-closed audit trail for every stage.
package hybrid

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/catalog"
	"github.com/veridocs/veridocs/internal/embedding"
	"github.com/veridocs/veridocs/internal/model"
	"github.com/veridocs/veridocs/internal/search"
)

const (
	// lexicalWeight and semanticWeight blend the normalized per-source
	// scores. Fixed equal weights in v1.
	lexicalWeight  = 0.5
	semanticWeight = 0.5

	// snippetLength bounds the content excerpt returned per result.
	snippetLength = 200

	defaultTopK           = 10
	defaultBackendTimeout = 10 * time.Second
)

// AuthorityEvaluator decides document access and records each decision in
// the audit log.
type AuthorityEvaluator interface {
	EvaluateDocumentAccess(ctx context.Context, actx model.AuthorityContext, documentID, queryID string) (model.AccessDecision, error)
	AllowedDocumentIDs(ctx context.Context, actx model.AuthorityContext, queryID string) ([]string, error)
}

// ChunkHydrator resolves chunk lineage for candidates the backends returned
// without a full payload.
type ChunkHydrator interface {
	GetChunkWithDocument(ctx context.Context, chunkID string) (model.ChunkLineage, error)
}

// Orchestrator coordinates one hybrid search per call. Safe for concurrent
// use; all per-query state is local to Search.
type Orchestrator struct {
	lexical   search.LexicalSearcher
	vector    search.VectorSearcher
	embedder  embedding.Provider
	hydrator  ChunkHydrator
	authority AuthorityEvaluator
	audit     *audit.Logger

	topK           int
	backendTimeout time.Duration
	prefilter      bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaultTopK sets the per-backend candidate count used when the caller
// passes topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithBackendTimeout sets the independent deadline for each retrieval leg.
func WithBackendTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.backendTimeout = d
		}
	}
}

// WithPrefilter makes the orchestrator compute the context's allowed
// document set up front and push it into both backends as a hard filter.
// Candidates are still individually authority-checked and audited; the
// prefilter only keeps denied documents from becoming candidates at all.
func WithPrefilter(enabled bool) Option {
	return func(o *Orchestrator) { o.prefilter = enabled }
}

// New creates an orchestrator over the given backends.
func New(
	lexical search.LexicalSearcher,
	vector search.VectorSearcher,
	embedder embedding.Provider,
	hydrator ChunkHydrator,
	auth AuthorityEvaluator,
	auditLogger *audit.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		lexical:        lexical,
		vector:         vector,
		embedder:       embedder,
		hydrator:       hydrator,
		authority:      auth,
		audit:          auditLogger,
		topK:           defaultTopK,
		backendTimeout: defaultBackendTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// normalize divides each score by the list maximum. A non-positive maximum
// zeroes the whole list, so a backend returning garbage scores cannot
// dominate the blend.
func normalize(scores []float64) []float64 {
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	norms := make([]float64, len(scores))
	if max <= 0 {
		return norms
	}
	for i, s := range scores {
		norms[i] = s / max
	}
	return norms
}

// merge combines both backend lists into candidates keyed by chunk id. A
// chunk seen by only one backend carries zero raw and normalized scores for
// the other.
func merge(lex, sem []search.Hit) map[string]*model.MergedCandidate {
	lexScores := make([]float64, len(lex))
	for i, h := range lex {
		lexScores[i] = h.Score
	}
	semScores := make([]float64, len(sem))
	for i, h := range sem {
		semScores[i] = h.Score
	}
	lexNorms := normalize(lexScores)
	semNorms := normalize(semScores)

	merged := make(map[string]*model.MergedCandidate, len(lex)+len(sem))
	for i, h := range lex {
		merged[h.ChunkID] = &model.MergedCandidate{
			ChunkID:      h.ChunkID,
			DocumentID:   h.DocumentID,
			ArtefactID:   h.ArtefactID,
			Content:      h.Content,
			LexicalScore: h.Score,
			LexicalNorm:  lexNorms[i],
		}
	}
	for i, h := range sem {
		if c, ok := merged[h.ChunkID]; ok {
			c.SemanticScore = h.Score
			c.SemanticNorm = semNorms[i]
			continue
		}
		merged[h.ChunkID] = &model.MergedCandidate{
			ChunkID:       h.ChunkID,
			DocumentID:    h.DocumentID,
			ArtefactID:    h.ArtefactID,
			Content:       h.Content,
			SemanticScore: h.Score,
			SemanticNorm:  semNorms[i],
		}
	}
	return merged
}

// hydrate fills missing content, document id, or artefact id from the
// catalog. A chunk unknown to the catalog is left as-is; the caller's
// contract checks decide whether that is fatal.
func (o *Orchestrator) hydrate(ctx context.Context, c *model.MergedCandidate) error {
	if c.Content != "" && c.DocumentID != "" && c.ArtefactID != "" {
		return nil
	}
	lineage, err := o.hydrator.GetChunkWithDocument(ctx, c.ChunkID)
	if err != nil {
		if errors.Is(err, catalog.ErrChunkNotFound) {
			return nil
		}
		return &model.BackendError{Backend: "catalog", Err: err}
	}
	if c.Content == "" {
		c.Content = lineage.Content
	}
	if c.DocumentID == "" {
		c.DocumentID = lineage.DocumentID
	}
	if c.ArtefactID == "" {
		c.ArtefactID = lineage.ArtefactID
	}
	return nil
}

// retrieve runs both backend legs concurrently, each under its own deadline.
// The embedding computation belongs to the semantic leg.
func (o *Orchestrator) retrieve(ctx context.Context, query string, allowedDocs []string, topK int) (lex, sem []search.Hit, err error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		legCtx, cancel := context.WithTimeout(gctx, o.backendTimeout)
		defer cancel()
		hits, err := o.lexical.SearchLexical(legCtx, query, allowedDocs, topK)
		if err != nil {
			return &model.BackendError{Backend: "lexical", Err: err}
		}
		lex = hits
		return nil
	})

	g.Go(func() error {
		legCtx, cancel := context.WithTimeout(gctx, o.backendTimeout)
		defer cancel()
		vec, err := o.embedder.Embed(legCtx, query)
		if err != nil {
			return &model.BackendError{Backend: "embedding", Err: err}
		}
		hits, err := o.vector.SearchVector(legCtx, embedding.Normalize(vec), allowedDocs, topK)
		if err != nil {
			return &model.BackendError{Backend: "vector", Err: err}
		}
		sem = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return lex, sem, nil
}

// Search runs one hybrid query end to end. queryID may be empty, in which
// case a fresh UUID is generated. Any audit write failure aborts the query
// with no partial response.
func (o *Orchestrator) Search(ctx context.Context, query string, actx model.AuthorityContext, topK int, queryID string) (model.Response, error) {
	if query == "" {
		return model.Response{}, model.NewContractError("query")
	}
	if topK <= 0 {
		topK = o.topK
	}
	if queryID == "" {
		queryID = uuid.New().String()
	}
	timestamp := time.Now().UTC().Format(time.RFC3339)

	if err := o.audit.QueryReceived(ctx, actx, queryID, query, topK); err != nil {
		return model.Response{}, err
	}
	if err := o.audit.SearchQuery(ctx, actx, queryID, query); err != nil {
		return model.Response{}, err
	}

	var allowedDocs []string
	if o.prefilter {
		docs, err := o.authority.AllowedDocumentIDs(ctx, actx, queryID)
		if err != nil {
			return model.Response{}, err
		}
		allowedDocs = docs
	}

	lex, sem, err := o.retrieve(ctx, query, allowedDocs, topK)
	if err != nil {
		return model.Response{}, err
	}
	if err := o.audit.SearchExecuted(ctx, actx, queryID, len(lex), len(sem)); err != nil {
		return model.Response{}, err
	}

	merged := merge(lex, sem)

	// Deterministic candidate order so decision and audit sequences are
	// reproducible for identical backend outputs.
	chunkIDs := make([]string, 0, len(merged))
	for id := range merged {
		chunkIDs = append(chunkIDs, id)
	}
	sort.Strings(chunkIDs)

	decisions := make(map[string]model.AccessDecision)
	results := make([]model.SearchResult, 0, len(merged))
	deniedCount := 0

	for _, chunkID := range chunkIDs {
		c := merged[chunkID]
		c.FinalScore = lexicalWeight*c.LexicalNorm + semanticWeight*c.SemanticNorm

		if err := o.hydrate(ctx, c); err != nil {
			return model.Response{}, err
		}
		if c.DocumentID == "" {
			return model.Response{}, model.NewContractError("document_id")
		}

		decision, seen := decisions[c.DocumentID]
		if !seen {
			d, err := o.authority.EvaluateDocumentAccess(ctx, actx, c.DocumentID, queryID)
			if err != nil {
				return model.Response{}, err
			}
			decisions[c.DocumentID] = d
			decision = d
		}
		if !decision.Allowed {
			deniedCount++
			continue
		}

		if c.Content == "" {
			return model.Response{}, &model.ContractError{Field: "snippet", Msg: "empty content for chunk " + c.ChunkID}
		}

		whyMatched, err := explainMatch(c.LexicalScore, c.SemanticScore)
		if err != nil {
			return model.Response{}, err
		}
		whyAllowed, err := explainAllowed(decision)
		if err != nil {
			return model.Response{}, err
		}

		results = append(results, model.SearchResult{
			DocumentID: c.DocumentID,
			ChunkID:    c.ChunkID,
			Snippet:    snippet(c.Content),
			Scores: model.ScoreSet{
				Lexical:  c.LexicalScore,
				Semantic: c.SemanticScore,
				Final:    c.FinalScore,
			},
			Authority: model.AuthorityInfo{
				Decision:       model.DecisionAllow,
				MatchedRuleIDs: decision.MatchedRuleIDs,
			},
			Explanation: model.Explanation{
				WhyMatched: whyMatched,
				WhyAllowed: whyAllowed,
				WhyRanked:  explainRanked(c.LexicalNorm, c.SemanticNorm, c.FinalScore),
			},
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Scores.Final != results[j].Scores.Final {
			return results[i].Scores.Final > results[j].Scores.Final
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if err := o.audit.AuthorityEvaluated(ctx, actx, queryID, len(decisions), deniedCount, len(results)); err != nil {
		return model.Response{}, err
	}
	if err := o.audit.ResultsFiltered(ctx, actx, queryID, len(merged), len(results)); err != nil {
		return model.Response{}, err
	}
	docIDs := make([]string, 0, len(results))
	for _, r := range results {
		docIDs = append(docIDs, r.DocumentID)
	}
	if err := o.audit.SearchResultsReturned(ctx, actx, queryID, len(results), docIDs); err != nil {
		return model.Response{}, err
	}
	if err := o.audit.ResponseReturned(ctx, actx, queryID, len(results)); err != nil {
		return model.Response{}, err
	}

	return buildResponse(queryID, timestamp, query, results)
}

// snippet returns the leading excerpt of content, bounded by snippetLength
// characters. Truncation counts runes so multi-byte text is never split.
func snippet(content string) string {
	runes := []rune(content)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return content
}

// buildResponse assembles the wire response after final contract checks.
func buildResponse(queryID, timestamp, query string, results []model.SearchResult) (model.Response, error) {
	if queryID == "" {
		return model.Response{}, model.NewContractError("query_id")
	}
	if timestamp == "" {
		return model.Response{}, model.NewContractError("timestamp")
	}
	if query == "" {
		return model.Response{}, model.NewContractError("query")
	}
	return model.Response{
		QueryID:   queryID,
		Timestamp: timestamp,
		Query:     query,
		Results:   results,
	}, nil
}
