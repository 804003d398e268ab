package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// Scorer judges generated answers. Implementations may be unavailable;
// callers treat scoring as best-effort.
type Scorer interface {
	// Score returns generation quality metrics for one answer.
	Score(ctx context.Context, req ScoreRequest) (GenerationMetrics, error)

	// Available reports whether the scorer can currently serve requests.
	Available(ctx context.Context) bool
}

// ScoreRequest carries everything the judge needs.
type ScoreRequest struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	GroundTruth string   `json:"ground_truth,omitempty"`
	Contexts    []string `json:"contexts"`
}

// RagasScorer scores answers via a ragas-compatible HTTP service.
type RagasScorer struct {
	url  string
	http *http.Client
	log  *logger.Logger
}

// NewRagasScorer creates a scorer client. An empty URL yields a scorer
// that is never available.
func NewRagasScorer(url string, timeout time.Duration, log *logger.Logger) *RagasScorer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &RagasScorer{
		url:  url,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type ragasResponse struct {
	Faithfulness     *float64 `json:"faithfulness"`
	AnswerRelevancy  *float64 `json:"answer_relevancy"`
	ContextPrecision *float64 `json:"context_precision"`
	ContextRecall    *float64 `json:"context_recall"`
}

// Score sends the answer to the scoring service.
func (s *RagasScorer) Score(ctx context.Context, req ScoreRequest) (GenerationMetrics, error) {
	if s.url == "" {
		return GenerationMetrics{}, errors.New(errors.CodeUnavailable, "answer scoring is not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return GenerationMetrics{}, errors.Wrap(errors.CodeInternal, "failed to encode score request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/score", bytes.NewReader(body))
	if err != nil {
		return GenerationMetrics{}, errors.Wrap(errors.CodeInternal, "failed to build score request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return GenerationMetrics{}, errors.Wrap(errors.CodeUnavailable, "score request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerationMetrics{}, errors.Wrap(errors.CodeInternal, "failed to read score response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return GenerationMetrics{}, errors.New(errors.CodeUnavailable,
			fmt.Sprintf("scoring service returned status %d", resp.StatusCode))
	}

	var parsed ragasResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return GenerationMetrics{}, errors.Wrap(errors.CodeInternal, "failed to decode score response", err)
	}

	return GenerationMetrics{
		Faithfulness:     parsed.Faithfulness,
		AnswerRelevancy:  parsed.AnswerRelevancy,
		ContextPrecision: parsed.ContextPrecision,
		ContextRecall:    parsed.ContextRecall,
	}, nil
}

// Available probes the scoring service health endpoint.
func (s *RagasScorer) Available(ctx context.Context) bool {
	if s.url == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
