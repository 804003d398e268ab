// Package rerank reorders retrieval candidates with a cross-encoder.
package rerank

import (
	"context"

	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/retrieval"
)

// Reranker scores query-document pairs with a cross-encoder and keeps
// the top K candidates.
type Reranker struct {
	inference inference.Service
	log       *logger.Logger
}

// New creates a Reranker.
func New(inf inference.Service, log *logger.Logger) *Reranker {
	return &Reranker{
		inference: inf,
		log:       log,
	}
}

// Rerank reorders candidates by cross-encoder score and truncates to
// topK. Candidate metadata is preserved; only order and score change.
// Failures surface as rerank errors so callers can fall back to the
// fused order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]retrieval.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = c.Content
	}

	ranked, err := r.inference.Rerank(ctx, query, documents, topK)
	if err != nil {
		return nil, errors.Wrap(errors.CodeRerankError, "cross-encoder scoring failed", err)
	}

	if len(ranked) == 0 {
		return nil, errors.New(errors.CodeRerankError, "cross-encoder returned no results")
	}

	reordered := make([]retrieval.Candidate, 0, topK)
	for _, rr := range ranked {
		if rr.Index < 0 || rr.Index >= len(candidates) {
			return nil, errors.New(errors.CodeRerankError, "cross-encoder index out of range")
		}
		c := candidates[rr.Index]
		c.Score = float64(rr.Score)
		reordered = append(reordered, c)
		if len(reordered) == topK {
			break
		}
	}

	return reordered, nil
}
