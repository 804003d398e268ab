package evaluation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docuchat/rag-server/internal/bus"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
)

func newTestHandler(t *testing.T, scorer Scorer) *http.ServeMux {
	t.Helper()

	runner := NewRunner(&fakePipeline{}, scorer, 2, logger.Default())
	h := NewHandler(runner, profile.NewRegistry(), scorer, nil, logger.Default())

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHandleSingle(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"question": "q", "relevant_doc_ids": ["doc-1"], "profile_id": "baseline"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/single", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.ProfileID != "baseline" {
		t.Errorf("ProfileID = %q, want baseline", res.ProfileID)
	}
	if res.Retrieval.RecallAt5 == nil {
		t.Error("expected recall metric with labels supplied")
	}
}

func TestHandleSingleUnknownProfile(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"question": "q", "profile_id": "nope"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/single", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSingleMissingQuestion(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"profile_id": "baseline"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/single", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleBatch(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"items": [{"question": "q1"}, {"question": "q2"}], "profile_id": "hybrid_v1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var batch BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(batch.Results) != 2 {
		t.Errorf("len(Results) = %d, want 2", len(batch.Results))
	}
	if batch.Aggregated.TotalSamples != 2 {
		t.Errorf("TotalSamples = %d, want 2", batch.Aggregated.TotalSamples)
	}
}

func TestHandleBatchPublishesEvent(t *testing.T) {
	memBus := bus.NewMemoryBus(logger.Default())
	defer memBus.Close()

	var received atomic.Int32
	memBus.Subscribe(context.Background(), bus.TopicEvaluationCompleted, func(ctx context.Context, event bus.Event) error {
		if event.Payload["profile_id"] != "baseline" {
			t.Errorf("profile_id = %v, want baseline", event.Payload["profile_id"])
		}
		received.Add(1)
		return nil
	})

	runner := NewRunner(&fakePipeline{}, nil, 2, logger.Default())
	h := NewHandler(runner, profile.NewRegistry(), nil, memBus, logger.Default())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body := `{"items": [{"question": "q"}], "profile_id": "baseline"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for received.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if received.Load() != 1 {
		t.Errorf("received %d events, want 1", received.Load())
	}
}

func TestHandleBatchEmptySamples(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"items": [], "profile_id": "baseline"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleBatchDefaultProfile(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"items": [{"question": "q"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/batch", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var batch BatchResult
	json.Unmarshal(rec.Body.Bytes(), &batch)
	if batch.ProfileID != profile.DefaultProfileID {
		t.Errorf("ProfileID = %q, want default", batch.ProfileID)
	}
}

func TestHandleListProfiles(t *testing.T) {
	mux := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/eval/profiles", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Profiles []profile.Profile `json:"profiles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Profiles) != 5 {
		t.Errorf("len(Profiles) = %d, want 5", len(resp.Profiles))
	}
}

func TestHandleGetProfile(t *testing.T) {
	mux := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/eval/profiles/fast", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var prof profile.Profile
	json.Unmarshal(rec.Body.Bytes(), &prof)
	if prof.ID != "fast" {
		t.Errorf("ID = %q, want fast", prof.ID)
	}
}

func TestHandleHealth(t *testing.T) {
	scorer := &fakeScorer{available: true}
	mux := newTestHandler(t, scorer)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/eval/health", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp HealthResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "ok" {
		t.Errorf("Status = %q", resp.Status)
	}
	if !resp.RagasAvailable {
		t.Error("RagasAvailable = false, want true")
	}
	if resp.ProfilesCount != 5 {
		t.Errorf("ProfilesCount = %d, want 5", resp.ProfilesCount)
	}
}

func TestHandleExportCSV(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"results": [{"question": "q", "answer": "a", "profile_id": "baseline"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/export/csv", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "question,answer") {
		t.Errorf("unexpected CSV body: %s", rec.Body.String())
	}
}

func TestHandleExportJSON(t *testing.T) {
	mux := newTestHandler(t, nil)

	body := `{"results": [{"question": "q", "answer": "a", "profile_id": "baseline"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/eval/export/json", strings.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "evaluation.json") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}
