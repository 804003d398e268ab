package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/qdrant"
)

type fakeVectorStore struct {
	healthErr        error
	count            uint64
	version          string
	collectionStatus string
}

func (f *fakeVectorStore) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeVectorStore) CountPoints(ctx context.Context, collection string, filter *qdrant.SearchFilter) (uint64, error) {
	return f.count, nil
}

func (f *fakeVectorStore) GetVersion(ctx context.Context) (string, error) {
	return f.version, nil
}

func (f *fakeVectorStore) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	return &qdrant.CollectionInfo{Name: name, PointsCount: f.count, Status: f.collectionStatus}, nil
}

type fakeHealthInference struct {
	healthy bool
}

func (f *fakeHealthInference) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func (f *fakeHealthInference) SparseEncode(ctx context.Context, texts []string) ([]inference.SparseVector, error) {
	return nil, nil
}

func (f *fakeHealthInference) Rerank(ctx context.Context, query string, documents []string, topK int) ([]inference.RankedResult, error) {
	return nil, nil
}

func (f *fakeHealthInference) Health(ctx context.Context) inference.HealthStatus {
	return inference.HealthStatus{Healthy: f.healthy}
}

func getHealth(t *testing.T, store VectorStoreHealth, svc inference.Service) HealthResponse {
	t.Helper()

	h := NewHealthHandler(store, svc, "documents", "test")
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestHandleHealthOK(t *testing.T) {
	store := &fakeVectorStore{count: 42, version: "1.11.0", collectionStatus: "green"}
	resp := getHealth(t, store, &fakeHealthInference{healthy: true})

	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if !resp.QdrantConnected {
		t.Error("qdrant_connected = false")
	}
	if !resp.InferenceConnected {
		t.Error("inference_connected = false")
	}
	if resp.DocumentCount != 42 {
		t.Errorf("document_count = %d, want 42", resp.DocumentCount)
	}
	if resp.Version != "test" {
		t.Errorf("version = %q, want test", resp.Version)
	}
	if resp.QdrantVersion != "1.11.0" {
		t.Errorf("qdrant_version = %q, want 1.11.0", resp.QdrantVersion)
	}
	if resp.CollectionStatus != "green" {
		t.Errorf("collection_status = %q, want green", resp.CollectionStatus)
	}
}

func TestHandleHealthQdrantDown(t *testing.T) {
	store := &fakeVectorStore{healthErr: errors.New(errors.CodeQdrantError, "connection refused")}
	resp := getHealth(t, store, &fakeHealthInference{healthy: true})

	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.QdrantConnected {
		t.Error("qdrant_connected = true with failing health check")
	}
	if resp.DocumentCount != 0 {
		t.Errorf("document_count = %d, want 0", resp.DocumentCount)
	}
	if resp.QdrantVersion != "" {
		t.Errorf("qdrant_version = %q, want empty when qdrant is down", resp.QdrantVersion)
	}
}

func TestHandleHealthInferenceDown(t *testing.T) {
	resp := getHealth(t, &fakeVectorStore{count: 1}, &fakeHealthInference{healthy: false})

	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.InferenceConnected {
		t.Error("inference_connected = true with unhealthy service")
	}
}
