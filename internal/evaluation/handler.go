package evaluation

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/docuchat/rag-server/internal/bus"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
)

// MaxBatchSize bounds one evaluation request.
const MaxBatchSize = 500

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	runner   *Runner
	registry *profile.Registry
	scorer   Scorer
	bus      bus.Bus
	log      *logger.Logger
}

// NewHandler creates an evaluation handler.
func NewHandler(runner *Runner, registry *profile.Registry, scorer Scorer, eventBus bus.Bus, log *logger.Logger) *Handler {
	return &Handler{
		runner:   runner,
		registry: registry,
		scorer:   scorer,
		bus:      eventBus,
		log:      log,
	}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/eval/single", h.handleSingle)
	mux.HandleFunc("POST /api/v1/eval/batch", h.handleBatch)
	mux.HandleFunc("GET /api/v1/eval/profiles", h.handleListProfiles)
	mux.HandleFunc("GET /api/v1/eval/profiles/{id}", h.handleGetProfile)
	mux.HandleFunc("GET /api/v1/eval/health", h.handleHealth)
	mux.HandleFunc("POST /api/v1/eval/export/json", h.handleExportJSON)
	mux.HandleFunc("POST /api/v1/eval/export/csv", h.handleExportCSV)
}

// SingleRequest evaluates one sample.
type SingleRequest struct {
	Question                 string   `json:"question"`
	GroundTruth              string   `json:"ground_truth,omitempty"`
	RelevantDocIDs           []string `json:"relevant_doc_ids,omitempty"`
	ProfileID                string   `json:"profile_id"`
	IncludeGenerationMetrics bool     `json:"include_generation_metrics"`
}

// BatchRequest evaluates a set of samples under one profile.
type BatchRequest struct {
	Items                    []Sample `json:"items"`
	ProfileID                string   `json:"profile_id"`
	IncludeGenerationMetrics bool     `json:"include_generation_metrics"`
}

// ExportRequest carries caller-held results back for download.
type ExportRequest struct {
	Results []Result `json:"results"`
}

// HealthResponse reports evaluation subsystem health.
type HealthResponse struct {
	Status         string `json:"status"`
	RagasAvailable bool   `json:"ragas_available"`
	ProfilesCount  int    `json:"profiles_count"`
}

func (h *Handler) handleSingle(w http.ResponseWriter, r *http.Request) {
	var req SingleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid JSON body"))
		return
	}

	prof, ok := h.resolveProfile(w, req.ProfileID)
	if !ok {
		return
	}

	if req.Question == "" {
		errors.WriteError(w, errors.ValidationError("question is required"))
		return
	}

	sample := Sample{
		Question:       req.Question,
		GroundTruth:    req.GroundTruth,
		RelevantDocIDs: req.RelevantDocIDs,
	}
	result := h.runner.EvaluateSingle(r.Context(), sample, prof, req.IncludeGenerationMetrics)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := h.runBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": h.registry.List(),
	})
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	prof, err := h.registry.Get(r.PathValue("id"))
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	available := h.scorer != nil && h.scorer.Available(r.Context())

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		RagasAvailable: available,
		ProfilesCount:  h.registry.Count(),
	})
}

func (h *Handler) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	results, ok := h.decodeExport(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="evaluation.json"`)
	if err := ExportJSON(w, results); err != nil {
		h.log.Error("json export failed", "error", err)
	}
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	results, ok := h.decodeExport(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="evaluation.csv"`)
	if err := ExportCSV(w, results); err != nil {
		h.log.Error("csv export failed", "error", err)
	}
}

func (h *Handler) decodeExport(w http.ResponseWriter, r *http.Request) ([]Result, bool) {
	var req ExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid JSON body"))
		return nil, false
	}
	if len(req.Results) == 0 {
		errors.WriteError(w, errors.ValidationError("at least one result is required"))
		return nil, false
	}
	return req.Results, true
}

// runBatch decodes a batch request, validates it and runs the
// evaluation. Returns ok=false after writing an error response.
func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) (BatchResult, bool) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, errors.InvalidRequestError("invalid JSON body"))
		return BatchResult{}, false
	}

	if len(req.Items) == 0 {
		errors.WriteError(w, errors.ValidationError("at least one item is required"))
		return BatchResult{}, false
	}
	if len(req.Items) > MaxBatchSize {
		errors.WriteError(w, errors.ValidationError("batch exceeds maximum size"))
		return BatchResult{}, false
	}
	for _, s := range req.Items {
		if s.Question == "" {
			errors.WriteError(w, errors.ValidationError("every item needs a question"))
			return BatchResult{}, false
		}
	}

	prof, ok := h.resolveProfile(w, req.ProfileID)
	if !ok {
		return BatchResult{}, false
	}

	batch := h.runner.EvaluateBatch(r.Context(), req.Items, prof, req.IncludeGenerationMetrics)
	h.publishCompleted(batch)
	return batch, true
}

func (h *Handler) publishCompleted(batch BatchResult) {
	if h.bus == nil {
		return
	}

	event := bus.NewEvent("evaluation.completed", "evaluation", map[string]interface{}{
		"profile_id":  batch.ProfileID,
		"samples":     len(batch.Results),
		"duration_ms": batch.DurationMS,
	})
	if err := h.bus.Publish(context.Background(), bus.TopicEvaluationCompleted, event); err != nil {
		h.log.Warn("failed to publish evaluation.completed event", "error", err)
	}
}

func (h *Handler) resolveProfile(w http.ResponseWriter, id string) (profile.Profile, bool) {
	if id == "" {
		id = profile.DefaultProfileID
	}

	prof, err := h.registry.Get(id)
	if err != nil {
		errors.WriteError(w, err)
		return profile.Profile{}, false
	}
	return prof, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
