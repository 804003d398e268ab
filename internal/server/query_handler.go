package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/docuchat/rag-server/internal/bus"
	"github.com/docuchat/rag-server/internal/cache"
	"github.com/docuchat/rag-server/internal/generate"
	"github.com/docuchat/rag-server/internal/pipeline"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
)

// Pipeline runs a question through the configured stages.
type Pipeline interface {
	Run(ctx context.Context, question string, prof profile.Profile) (*pipeline.Response, error)
}

// QueryHandler serves the main question answering endpoint.
type QueryHandler struct {
	pipeline Pipeline
	registry *profile.Registry
	cache    cache.Cache
	bus      bus.Bus
	log      *logger.Logger
}

// NewQueryHandler creates the query handler. Cache and bus may be nil.
func NewQueryHandler(p Pipeline, registry *profile.Registry, c cache.Cache, b bus.Bus, log *logger.Logger) *QueryHandler {
	if log == nil {
		log = logger.Default()
	}
	return &QueryHandler{
		pipeline: p,
		registry: registry,
		cache:    c,
		bus:      b,
		log:      log,
	}
}

// RegisterRoutes registers query routes.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.handleQuery)
}

// QueryRequest is a question for the pipeline.
type QueryRequest struct {
	Question  string `json:"question"`
	ProfileID string `json:"profile_id"`
}

// QueryResponse is the answer payload.
type QueryResponse struct {
	Answer           string            `json:"answer"`
	Sources          []generate.Source `json:"sources"`
	RetrievedDocIDs  []string          `json:"retrieved_doc_ids,omitempty"`
	RoutingDecision  string            `json:"routing_decision"`
	ProfileID        string            `json:"profile_id"`
	ProcessingTimeMS float64           `json:"processing_time_ms"`
	Cached           bool              `json:"cached"`
	Degraded         bool              `json:"degraded,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid JSON body"))
		return
	}

	if req.Question == "" {
		errors.WriteError(w, errors.ValidationError("question is required"))
		return
	}

	if req.ProfileID == "" {
		req.ProfileID = profile.DefaultProfileID
	}
	prof, err := h.registry.Get(req.ProfileID)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	cacheKey := cache.Key(req.Question, prof.ID)
	if resp, ok := h.cachedResponse(r, cacheKey); ok {
		resp.ProcessingTimeMS = msSince(start)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	result, err := h.pipeline.Run(r.Context(), req.Question, prof)
	if err != nil {
		h.log.Error("pipeline failed", "question", req.Question, "profile", prof.ID, "error", err)
		errors.WriteError(w, err)
		return
	}

	resp := QueryResponse{
		Answer:           result.Answer,
		Sources:          result.Sources,
		RetrievedDocIDs:  result.RetrievedDocIDs,
		RoutingDecision:  string(result.RoutingDecision),
		ProfileID:        prof.ID,
		ProcessingTimeMS: msSince(start),
		Degraded:         result.Degraded,
		Warnings:         result.Warnings,
	}

	h.storeInCache(r, cacheKey, result)
	h.publishAnswered(req.Question, prof.ID, result)

	writeJSON(w, http.StatusOK, resp)
}

// cachedResponse returns a cached answer for the question if one exists.
func (h *QueryHandler) cachedResponse(r *http.Request, key string) (QueryResponse, bool) {
	if h.cache == nil {
		return QueryResponse{}, false
	}

	entry, found, err := h.cache.Get(r.Context(), key)
	if err != nil {
		h.log.Warn("cache lookup failed", "error", err)
		return QueryResponse{}, false
	}
	if !found {
		return QueryResponse{}, false
	}

	var sources []generate.Source
	if len(entry.SourcesJSON) > 0 {
		if err := json.Unmarshal(entry.SourcesJSON, &sources); err != nil {
			h.log.Warn("cache entry has malformed sources", "error", err)
			return QueryResponse{}, false
		}
	}

	return QueryResponse{
		Answer:          entry.Answer,
		Sources:         sources,
		RoutingDecision: entry.RoutingDecision,
		Cached:          true,
	}, true
}

func (h *QueryHandler) storeInCache(r *http.Request, key string, result *pipeline.Response) {
	// Degraded answers are not cached so a healthy retry can replace them.
	if h.cache == nil || result.Degraded {
		return
	}

	sourcesJSON, err := json.Marshal(result.Sources)
	if err != nil {
		h.log.Warn("failed to marshal sources for cache", "error", err)
		return
	}

	entry := cache.Entry{
		Answer:          result.Answer,
		SourcesJSON:     sourcesJSON,
		RoutingDecision: string(result.RoutingDecision),
		CachedAt:        time.Now().UTC(),
	}
	if err := h.cache.Set(r.Context(), key, entry); err != nil {
		h.log.Warn("cache store failed", "error", err)
	}
}

func (h *QueryHandler) publishAnswered(question, profileID string, result *pipeline.Response) {
	if h.bus == nil {
		return
	}

	event := bus.NewEvent("query.answered", "server", map[string]interface{}{
		"question":         question,
		"profile_id":       profileID,
		"routing_decision": string(result.RoutingDecision),
		"total_ms":         result.Latency.TotalMS,
	})
	if err := h.bus.Publish(context.Background(), bus.TopicQueryAnswered, event); err != nil {
		h.log.Warn("failed to publish query event", "error", err)
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
