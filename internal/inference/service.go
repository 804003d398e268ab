// Package inference provides clients for the embedding and reranking service.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// Service provides vector inference capabilities.
type Service interface {
	// Embed generates dense embeddings for texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// SparseEncode generates sparse vectors for texts.
	SparseEncode(ctx context.Context, texts []string) ([]SparseVector, error)

	// Rerank scores documents against a query and returns them best-first.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RankedResult, error)

	// Health returns the service health status.
	Health(ctx context.Context) HealthStatus
}

// SparseVector represents a sparse vector with indices and values.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// RankedResult represents a reranked document.
type RankedResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// HealthStatus represents service health.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// HTTPService is a Service backed by an HTTP inference server.
type HTTPService struct {
	cfg  config.InferenceConfig
	http *http.Client
	log  *logger.Logger
}

// NewHTTPService creates an inference client.
func NewHTTPService(cfg config.InferenceConfig, log *logger.Logger) *HTTPService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPService{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// Embed generates dense embeddings.
func (s *HTTPService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embedResponse
	if err := s.post(ctx, "/embeddings", embedRequest{Model: s.cfg.EmbedModel, Input: texts}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)))
	}

	results := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(results) {
			return nil, errors.New(errors.CodeInternal, "embedding index out of range")
		}
		results[d.Index] = d.Embedding
	}

	return results, nil
}

type sparseResponse struct {
	Data []SparseVector `json:"data"`
}

// SparseEncode generates sparse vectors.
func (s *HTTPService) SparseEncode(ctx context.Context, texts []string) ([]SparseVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp sparseResponse
	if err := s.post(ctx, "/sparse", embedRequest{Model: s.cfg.SparseModel, Input: texts}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, errors.New(errors.CodeInternal,
			fmt.Sprintf("sparse vector count mismatch: got %d, want %d", len(resp.Data), len(texts)))
	}

	return resp.Data, nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []RankedResult `json:"results"`
}

// Rerank scores documents against a query. Results come back sorted by
// descending score, truncated to topK when topK > 0.
func (s *HTTPService) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RankedResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var resp rerankResponse
	req := rerankRequest{
		Model:     s.cfg.RerankModel,
		Query:     query,
		Documents: documents,
		TopK:      topK,
	}
	if err := s.post(ctx, "/rerank", req, &resp); err != nil {
		return nil, err
	}

	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, errors.New(errors.CodeInternal, "rerank index out of range")
		}
	}

	return resp.Results, nil
}

// Health probes the inference server.
func (s *HTTPService) Health(ctx context.Context) HealthStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL+"/health", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	return HealthStatus{Healthy: true}
}

func (s *HTTPService) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to encode inference request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to build inference request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeUnavailable, "inference request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to read inference response", err)
	}

	if resp.StatusCode != http.StatusOK {
		s.log.Error("inference request failed", "path", path, "status", resp.StatusCode)
		return errors.New(errors.CodeUnavailable,
			fmt.Sprintf("inference server returned status %d", resp.StatusCode))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to decode inference response", err)
	}

	return nil
}
