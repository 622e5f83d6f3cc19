package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/auth"
	"github.com/veridocs/veridocs/internal/authority"
	"github.com/veridocs/veridocs/internal/catalog"
	"github.com/veridocs/veridocs/internal/config"
	"github.com/veridocs/veridocs/internal/embedding"
	"github.com/veridocs/veridocs/internal/hybrid"
	"github.com/veridocs/veridocs/internal/integrity"
	"github.com/veridocs/veridocs/internal/mcp"
	"github.com/veridocs/veridocs/internal/model"
	"github.com/veridocs/veridocs/internal/ratelimit"
	"github.com/veridocs/veridocs/internal/search"
	"github.com/veridocs/veridocs/internal/server"
	"github.com/veridocs/veridocs/internal/telemetry"
	"github.com/veridocs/veridocs/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("VERIDOCS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("veridocs starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to the catalog database and run migrations. RunMigrations
	// tracks applied files in schema_migrations and skips duplicates, so
	// errors here indicate real failures (not "already exists").
	db, err := catalog.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Audit sink. The Postgres sink shares the catalog pool; the SQLite
	// sink is for development and single-binary deployments.
	var sink audit.Sink
	if cfg.AuditSQLitePath != "" {
		sqliteSink, err := audit.NewSQLiteSink(ctx, cfg.AuditSQLitePath)
		if err != nil {
			return fmt.Errorf("audit sqlite: %w", err)
		}
		defer func() { _ = sqliteSink.Close() }()
		sink = sqliteSink
		logger.Info("audit sink: sqlite", "path", cfg.AuditSQLitePath)
	} else {
		sink = audit.NewPostgresSink(db.Pool())
		logger.Info("audit sink: postgres")
	}

	// Embedding provider.
	embedder := newEmbeddingProvider(cfg, logger)

	auditLogger := audit.New(sink, cfg.DefaultActor, logger,
		audit.WithModelVersion(embedder.ModelVersion()),
		audit.WithIndexVersion(cfg.IndexVersion),
	)

	// Vector backend: Qdrant when configured, else the pgvector index on
	// the catalog database.
	var vector search.VectorSearcher
	if cfg.QdrantURL != "" {
		qdrantIndex, err := search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		defer func() { _ = qdrantIndex.Close() }()

		if err := qdrantIndex.EnsureCollection(ctx); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		vector = qdrantIndex
		logger.Info("vector backend: qdrant", "collection", cfg.QdrantCollection)
	} else {
		vector = search.NewPgvectorIndex(db.Pool(), logger)
		logger.Info("vector backend: pgvector (no QDRANT_URL)")
	}

	lexical := search.NewLexicalIndex(db.Pool(), logger)
	engine := authority.New(db, auditLogger, logger)

	orchestrator := hybrid.New(lexical, vector, embedder, db, engine, auditLogger,
		hybrid.WithDefaultTopK(cfg.DefaultTopK),
		hybrid.WithBackendTimeout(cfg.BackendTimeout),
		hybrid.WithPrefilter(cfg.PrefilterByACL),
	)

	tokens, err := auth.NewTokenManager(cfg.TokenPrivateKeyPath, cfg.TokenPublicKeyPath, cfg.TokenExpiration)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	defaultCtx := model.AuthorityContext{
		User:                  cfg.DefaultUser,
		Roles:                 cfg.DefaultRoles,
		ProjectCodes:          cfg.DefaultProjectCodes,
		Discipline:            cfg.DefaultDiscipline,
		Classification:        cfg.DefaultClassification,
		CommercialSensitivity: cfg.DefaultCommercialSensitivity,
	}

	// MCP server, mounted at /mcp by the HTTP server.
	mcpSrv := mcp.New(orchestrator, engine, sink, defaultCtx, logger, version)

	// Rate limiter.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer func() { _ = limiter.Close() }()
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		Searcher:            orchestrator,
		Authority:           engine,
		AuditSink:           sink,
		Tokens:              tokens,
		Logger:              logger,
		DefaultContext:      defaultCtx,
		DB:                  db,
		Vector:              vector,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		APIKeyHash:          cfg.APIKeyHash,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Tamper-evidence proof loop (Merkle batch proofs over audit hashes).
	// Only the Postgres sink supports proofs.
	if proofSink, ok := sink.(audit.ProofSink); ok && cfg.ProofInterval > 0 {
		go auditProofLoop(ctx, proofSink, logger, cfg.ProofInterval)
	}

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new HTTP requests and drain
	// in-flight queries. Audit writes are synchronous, so a drained request
	// has already committed its events; nothing else needs flushing.
	slog.Info("veridocs shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("veridocs stopped")
	return nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if key present, else noop.
// Ollama is preferred: embeddings stay on-premises with no external API costs.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when VERIDOCS_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic search degraded to zero vectors)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		}
		logger.Warn("no embedding provider available, using noop (semantic search degraded to zero vectors)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func auditProofLoop(ctx context.Context, sink audit.ProofSink, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			buildAuditProof(ctx, sink, logger)
		}
	}
}

// buildAuditProof creates one Merkle batch proof over the audit events
// recorded since the previous proof. Proofs chain via the previous root so
// rewriting any historical batch is detectable.
func buildAuditProof(ctx context.Context, sink audit.ProofSink, logger *slog.Logger) {
	now := time.Now().UTC()

	latest, err := sink.LatestProof(ctx)
	if err != nil {
		logger.Warn("audit proof: get latest failed", "error", err)
		return
	}

	batchStart := time.Time{} // Zero time: include all events from the beginning.
	var previousRoot *string
	if latest != nil {
		batchStart = latest.BatchEnd
		previousRoot = &latest.RootHash
	}

	hashes, err := sink.EventHashesForBatch(ctx, batchStart, now)
	if err != nil {
		logger.Warn("audit proof: get hashes failed", "error", err)
		return
	}
	if len(hashes) == 0 {
		return // No new events; skip proof.
	}

	root := integrity.BuildMerkleRoot(hashes)

	proof := audit.Proof{
		BatchStart: batchStart,
		BatchEnd:   now,
		EventCount: len(hashes),
		RootHash:   root,
		PrevRoot:   previousRoot,
		CreatedAt:  now,
	}
	if err := sink.InsertProof(ctx, proof); err != nil {
		logger.Warn("audit proof: create failed", "error", err)
		return
	}

	logger.Info("audit proof created",
		"events", len(hashes),
		"root_hash", root[:16]+"...",
	)
}
