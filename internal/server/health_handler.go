package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/qdrant"
)

// VectorStoreHealth is the subset of the vector store used for health checks.
type VectorStoreHealth interface {
	HealthCheck(ctx context.Context) error
	CountPoints(ctx context.Context, collection string, filter *qdrant.SearchFilter) (uint64, error)
	GetVersion(ctx context.Context) (string, error)
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
}

// HealthHandler reports overall service health.
type HealthHandler struct {
	qdrant     VectorStoreHealth
	inference  inference.Service
	collection string
	version    string
	log        *logger.Logger
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(qc VectorStoreHealth, svc inference.Service, collection, version string) *HealthHandler {
	return &HealthHandler{
		qdrant:     qc,
		inference:  svc,
		collection: collection,
		version:    version,
		log:        logger.Default(),
	}
}

// RegisterRoutes registers health routes.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", h.handleHealth)
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	QdrantConnected    bool   `json:"qdrant_connected"`
	QdrantVersion      string `json:"qdrant_version,omitempty"`
	CollectionStatus   string `json:"collection_status,omitempty"`
	InferenceConnected bool   `json:"inference_connected"`
	DocumentCount      uint64 `json:"document_count"`
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}

	if err := h.qdrant.HealthCheck(r.Context()); err == nil {
		resp.QdrantConnected = true
		if count, err := h.qdrant.CountPoints(r.Context(), h.collection, nil); err == nil {
			resp.DocumentCount = count
		}
		if v, err := h.qdrant.GetVersion(r.Context()); err == nil {
			resp.QdrantVersion = v
		}
		if info, err := h.qdrant.GetCollectionInfo(r.Context(), h.collection); err == nil {
			resp.CollectionStatus = info.Status
		}
	} else {
		resp.Status = "degraded"
	}

	if h.inference != nil {
		status := h.inference.Health(r.Context())
		resp.InferenceConnected = status.Healthy
		if !status.Healthy {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
