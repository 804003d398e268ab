// Package server wires all services together behind the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/docuchat/rag-server/internal/bus"
	"github.com/docuchat/rag-server/internal/cache"
	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/evaluation"
	"github.com/docuchat/rag-server/internal/generate"
	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/ingest"
	"github.com/docuchat/rag-server/internal/llm"
	"github.com/docuchat/rag-server/internal/pipeline"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/pkg/middleware"
	"github.com/docuchat/rag-server/internal/profile"
	"github.com/docuchat/rag-server/internal/qdrant"
	"github.com/docuchat/rag-server/internal/rerank"
	"github.com/docuchat/rag-server/internal/retrieval"
	"github.com/docuchat/rag-server/internal/rewrite"
	"github.com/docuchat/rag-server/internal/router"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 5 * time.Minute // batch evaluation can run long
	shutdownTimeout = 30 * time.Second
)

// Server is the main HTTP server wiring all services together.
type Server struct {
	cfg     *config.Config
	version string
	log     *logger.Logger

	httpServer *http.Server

	bus       bus.Bus
	qdrant    *qdrant.Client
	inference inference.Service
	llm       llm.Client
	cache     cache.Cache
	profiles  *profile.Registry
	pipeline  *pipeline.Pipeline

	queryHandler  *QueryHandler
	healthHandler *HealthHandler
	evalHandler   *evaluation.Handler
	uploadHandler *ingest.Handler

	mu      sync.RWMutex
	started bool
}

// New creates a server with all dependencies wired from configuration.
func New(cfg *config.Config, version string, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default()
	}

	s := &Server{
		cfg:     cfg,
		version: version,
		log:     log,
	}

	eventBus, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	s.bus = eventBus

	qc, err := qdrant.NewClient(qdrant.ClientConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	s.qdrant = qc

	s.inference = inference.NewHTTPService(cfg.Inference, log)
	s.llm = llm.NewHTTPClient(cfg.LLM, log)

	s.cache, err = newAnswerCache(cfg.Cache, log)
	if err != nil {
		return nil, err
	}

	s.profiles = profile.NewRegistry()

	// Pipeline stages.
	var routerClient llm.Client
	if cfg.Retrieval.UseLLMRouter {
		routerClient = s.llm
	}
	queryRouter := router.New(routerClient, cfg.LLM.RouterModel, log)
	rewriter := rewrite.New(s.llm, cfg.LLM.RewriteModel, log)
	retriever := retrieval.New(s.qdrant, s.inference, cfg.Qdrant.Collection, cfg.Retrieval, log)
	reranker := rerank.New(s.inference, log)
	generator := generate.New(s.llm, cfg.LLM.GeneratorModel, cfg.LLM.Temperature, log)

	s.pipeline = pipeline.New(queryRouter, rewriter, retriever, reranker, generator, log)

	// Evaluation.
	scorer := evaluation.NewRagasScorer(cfg.Eval.RagasURL, time.Duration(cfg.Eval.TimeoutSeconds)*time.Second, log)
	runner := evaluation.NewRunner(s.pipeline, scorer, cfg.Eval.BatchConcurrency, log)
	s.evalHandler = evaluation.NewHandler(runner, s.profiles, scorer, s.bus, log)

	// Ingestion.
	chunker := ingest.NewChunker(ingest.ChunkerConfig{
		TargetSize: cfg.Ingest.ChunkSize,
		Overlap:    cfg.Ingest.ChunkOverlap,
	})
	processor := ingest.NewProcessor(chunker, s.inference, s.qdrant, cfg.Qdrant.Collection, log)
	s.uploadHandler = ingest.NewHandler(processor, ingest.NewTaskStore(), s.cache, s.bus, cfg.Ingest, log)

	// Query and health.
	s.queryHandler = NewQueryHandler(s.pipeline, s.profiles, s.cache, s.bus, log)
	s.healthHandler = NewHealthHandler(s.qdrant, s.inference, cfg.Qdrant.Collection, version)

	return s, nil
}

// newAnswerCache builds the configured answer cache. Returns nil when
// caching is disabled.
func newAnswerCache(cfg config.CacheConfig, log *logger.Logger) (cache.Cache, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if cfg.RedisURL == "" {
		log.Warn("cache enabled without redis url, using in-memory cache")
		return cache.NewMemoryCache(ttl), nil
	}

	c, err := cache.NewRedisCache(cfg.RedisURL, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return c, nil
}

// EnsureCollection creates the document collection if it does not exist.
func (s *Server) EnsureCollection(ctx context.Context) error {
	exists, err := s.qdrant.CollectionExists(ctx, s.cfg.Qdrant.Collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	collCfg := qdrant.DefaultCollectionConfig(s.cfg.Qdrant.Collection)
	collCfg.DenseVectorSize = uint64(s.cfg.Inference.EmbedDim)

	s.log.Info("creating collection", "collection", s.cfg.Qdrant.Collection, "dim", collCfg.DenseVectorSize)
	return s.qdrant.CreateCollection(ctx, collCfg)
}

// Start starts the HTTP server. Blocks until the server exits.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	addr := s.cfg.Address()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	s.log.Info("starting HTTP server", "addr", addr, "version", s.version)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server and closes all services.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP shutdown error", "error", err)
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.qdrant != nil {
		s.qdrant.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}

	s.started = false
	s.log.Info("server stopped")

	return nil
}

// Routes builds the full handler chain for the API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.queryHandler.RegisterRoutes(mux)
	s.healthHandler.RegisterRoutes(mux)
	s.evalHandler.RegisterRoutes(mux)
	s.uploadHandler.RegisterRoutes(mux)

	var handler http.Handler = mux
	if s.cfg.Security.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.cfg.Security.RateLimit),
			Burst:             s.cfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		handler = limiter.Middleware(handler)
	}
	handler = middleware.CORS(s.cfg.Security.CORSOrigins, handler)
	handler = middleware.Logging(s.log, handler)

	return handler
}
