package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/auth"
	"github.com/veridocs/veridocs/internal/model"
)

// Searcher runs one hybrid query end to end.
type Searcher interface {
	Search(ctx context.Context, query string, actx model.AuthorityContext, topK int, queryID string) (model.Response, error)
}

// AuthorityChecker evaluates document access for a context.
type AuthorityChecker interface {
	EvaluateDocumentAccess(ctx context.Context, actx model.AuthorityContext, documentID, queryID string) (model.AccessDecision, error)
}

// Pinger reports catalog database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VectorHealth reports vector backend liveness.
type VectorHealth interface {
	Healthy(ctx context.Context) error
}

// HandlersDeps holds dependencies for creating Handlers.
type HandlersDeps struct {
	Searcher  Searcher
	Authority AuthorityChecker
	AuditSink audit.Sink
	Tokens    *auth.TokenManager
	DB        Pinger
	Vector    VectorHealth
	Logger    *slog.Logger

	// APIKeyHash is the Argon2id-encoded API key accepted by the token
	// endpoint. Empty disables token issuance.
	APIKeyHash string

	Version             string
	MaxRequestBodyBytes int64
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	searcher  Searcher
	authority AuthorityChecker
	auditSink audit.Sink
	tokens    *auth.TokenManager
	db        Pinger
	vector    VectorHealth
	logger    *slog.Logger

	apiKeyHash   string
	version      string
	maxBodyBytes int64
}

// NewHandlers creates the handler set.
func NewHandlers(deps HandlersDeps) *Handlers {
	maxBody := deps.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		searcher:     deps.Searcher,
		authority:    deps.Authority,
		auditSink:    deps.AuditSink,
		tokens:       deps.Tokens,
		db:           deps.DB,
		vector:       deps.Vector,
		logger:       deps.Logger,
		apiKeyHash:   deps.APIKeyHash,
		version:      deps.Version,
		maxBodyBytes: maxBody,
	}
}

type searchRequest struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
	QueryID string `json:"query_id,omitempty"`
}

// HandleSearch handles POST /v1/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	actx, ok := AuthorityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no authority context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "query is required")
		return
	}

	resp, err := h.searcher.Search(r.Context(), req.Query, actx, req.TopK, req.QueryID)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// writeSearchError maps orchestrator error types onto HTTP statuses. All of
// them are fatal to the query; none yields a partial response.
func (h *Handlers) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var contractErr *model.ContractError
	var auditErr *model.AuditError
	var backendErr *model.BackendError

	switch {
	case errors.As(err, &contractErr):
		if contractErr.Field == "query" {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, contractErr.Error())
			return
		}
		h.logger.Error("response contract violation", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeContract, contractErr.Error())
	case errors.As(err, &auditErr):
		h.logger.Error("audit write failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeAudit, "audit log write failed")
	case errors.As(err, &backendErr):
		h.logger.Error("backend failure", "backend", backendErr.Backend, "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusBadGateway, model.ErrCodeBackend, backendErr.Backend+" backend unavailable")
	default:
		h.logger.Error("search failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "internal server error")
	}
}

type authorityCheckRequest struct {
	DocumentID string `json:"document_id"`
	QueryID    string `json:"query_id,omitempty"`
}

// HandleAuthorityCheck handles POST /v1/authority/check. The decision is
// recorded in the audit log like any other, so a query_id is generated when
// the caller does not provide one.
func (h *Handlers) HandleAuthorityCheck(w http.ResponseWriter, r *http.Request) {
	actx, ok := AuthorityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "no authority context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req authorityCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.DocumentID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "document_id is required")
		return
	}
	if req.QueryID == "" {
		req.QueryID = uuid.New().String()
	}

	decision, err := h.authority.EvaluateDocumentAccess(r.Context(), actx, req.DocumentID, req.QueryID)
	if err != nil {
		h.writeSearchError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"query_id": req.QueryID,
		"decision": decision.Outcome(),
		"detail":   decision,
	})
}

// HandleAuditEvents handles GET /v1/audit/events?query_id=.
func (h *Handlers) HandleAuditEvents(w http.ResponseWriter, r *http.Request) {
	queryID := r.URL.Query().Get("query_id")
	if queryID == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "query_id is required")
		return
	}

	events, err := h.auditSink.EventsByQueryID(r.Context(), queryID)
	if err != nil {
		h.logger.Error("audit read failed", "error", err, "query_id", queryID)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to read audit log")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"query_id": queryID,
		"count":    len(events),
		"events":   events,
	})
}

type tokenRequest struct {
	APIKey                string   `json:"api_key"`
	User                  string   `json:"user"`
	Roles                 []string `json:"roles,omitempty"`
	ProjectCodes          []string `json:"project_codes,omitempty"`
	Discipline            string   `json:"discipline,omitempty"`
	Classification        string   `json:"classification,omitempty"`
	CommercialSensitivity string   `json:"commercial_sensitivity,omitempty"`
}

// HandleAuthToken handles POST /auth/token. Exchanges the service API key
// for a signed context token carrying the requested authority attributes.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.User == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeBadRequest, "user is required")
		return
	}

	if h.apiKeyHash == "" {
		// Burn the same amount of work as a real verification so the
		// disabled state is not observable through timing.
		auth.DummyVerify()
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnauthorized, "token issuance is not configured")
		return
	}

	ok, err := auth.VerifyAPIKey(req.APIKey, h.apiKeyHash)
	if err != nil || !ok {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid api key")
		return
	}

	token, expiresAt, err := h.tokens.IssueContextToken(model.AuthorityContext{
		User:                  req.User,
		Roles:                 req.Roles,
		ProjectCodes:          req.ProjectCodes,
		Discipline:            req.Discipline,
		Classification:        req.Classification,
		CommercialSensitivity: req.CommercialSensitivity,
	})
	if err != nil {
		h.logger.Error("token issue failed", "error", err, "user", req.User)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to issue token")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
}

// HandleHealth handles GET /health. Reports per-component status; the
// overall status is degraded when any component check fails.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			components["database"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			components["database"] = "healthy"
		}
	}
	if h.vector != nil {
		if err := h.vector.Healthy(ctx); err != nil {
			components["vector"] = "unhealthy: " + err.Error()
			healthy = false
		} else {
			components["vector"] = "healthy"
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}
