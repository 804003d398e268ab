package evaluation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docuchat/rag-server/internal/pkg/logger"
)

func TestRagasScorerScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score" {
			t.Errorf("path = %q, want /score", r.URL.Path)
		}

		var req ScoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Question != "q" || len(req.Contexts) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}

		json.NewEncoder(w).Encode(map[string]float64{
			"faithfulness":      0.91,
			"answer_relevancy":  0.85,
			"context_precision": 0.77,
			"context_recall":    0.69,
		})
	}))
	defer srv.Close()

	scorer := NewRagasScorer(srv.URL, 5*time.Second, logger.Default())

	got, err := scorer.Score(context.Background(), ScoreRequest{
		Question: "q",
		Answer:   "a",
		Contexts: []string{"ctx"},
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got.Faithfulness == nil || *got.Faithfulness != 0.91 {
		t.Errorf("Faithfulness = %v, want 0.91", got.Faithfulness)
	}
	if got.ContextPrecision == nil || *got.ContextPrecision != 0.77 {
		t.Errorf("ContextPrecision = %v, want 0.77", got.ContextPrecision)
	}
	if got.ContextRecall == nil || *got.ContextRecall != 0.69 {
		t.Errorf("ContextRecall = %v, want 0.69", got.ContextRecall)
	}
}

func TestRagasScorerPartialMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"faithfulness": 0.5})
	}))
	defer srv.Close()

	scorer := NewRagasScorer(srv.URL, 5*time.Second, logger.Default())

	got, err := scorer.Score(context.Background(), ScoreRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if got.Faithfulness == nil {
		t.Error("expected faithfulness")
	}
	if got.AnswerRelevancy != nil {
		t.Error("expected nil answer relevancy when absent from response")
	}
}

func TestRagasScorerUnconfigured(t *testing.T) {
	scorer := NewRagasScorer("", 0, logger.Default())

	if scorer.Available(context.Background()) {
		t.Error("unconfigured scorer should not be available")
	}

	if _, err := scorer.Score(context.Background(), ScoreRequest{}); err == nil {
		t.Error("Score() = nil, want error when unconfigured")
	}
}

func TestRagasScorerAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	scorer := NewRagasScorer(srv.URL, 5*time.Second, logger.Default())
	if !scorer.Available(context.Background()) {
		t.Error("expected scorer to be available")
	}
}
