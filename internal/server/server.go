package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/auth"
	"github.com/veridocs/veridocs/internal/model"
	"github.com/veridocs/veridocs/internal/ratelimit"
)

// Server is the retrieval service HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Optional fields (nil-safe): Limiter, MCPServer, DB, Vector.
type ServerConfig struct {
	// Required dependencies.
	Searcher  Searcher
	Authority AuthorityChecker
	AuditSink audit.Sink
	Tokens    *auth.TokenManager
	Logger    *slog.Logger

	// DefaultContext is used for requests carrying no context token.
	DefaultContext model.AuthorityContext

	// Optional dependencies (nil = disabled).
	DB        Pinger
	Vector    VectorHealth
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	APIKeyHash          string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Searcher:            cfg.Searcher,
		Authority:           cfg.Authority,
		AuditSink:           cfg.AuditSink,
		Tokens:              cfg.Tokens,
		DB:                  cfg.DB,
		Vector:              cfg.Vector,
		Logger:              cfg.Logger,
		APIKeyHash:          cfg.APIKeyHash,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	searchRL := ratelimit.Middleware(cfg.Limiter, "search", userKeyFunc, reqIDFunc)
	queryRL := ratelimit.Middleware(cfg.Limiter, "query", userKeyFunc, reqIDFunc)
	authRL := ratelimit.Middleware(cfg.Limiter, "auth", ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Token endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Core retrieval API.
	mux.Handle("POST /v1/search", searchRL(http.HandlerFunc(h.HandleSearch)))
	mux.Handle("POST /v1/authority/check", queryRL(http.HandlerFunc(h.HandleAuthorityCheck)))
	mux.Handle("GET /v1/audit/events", queryRL(http.HandlerFunc(h.HandleAuditEvents)))

	// MCP StreamableHTTP transport. Auth middleware applies; an MCP client
	// with no token operates under the default context.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.Tokens, cfg.DefaultContext, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// userKeyFunc keys rate limits by the authenticated user.
func userKeyFunc(r *http.Request) string {
	actx, ok := AuthorityFromContext(r.Context())
	if !ok {
		return ""
	}
	return actx.User
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
