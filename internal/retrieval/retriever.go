// Package retrieval orchestrates hybrid dense and sparse retrieval
// across query variants with reciprocal rank fusion.
package retrieval

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/qdrant"
	"github.com/docuchat/rag-server/internal/retrieval/fusion"
)

// Mode selects which retrieval modalities run.
type Mode string

const (
	// ModeDense runs dense vector search only.
	ModeDense Mode = "dense"

	// ModeHybrid runs dense and sparse search and fuses the results.
	ModeHybrid Mode = "hybrid"
)

// VectorSearcher is the subset of the Qdrant client used for retrieval.
type VectorSearcher interface {
	DenseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
	SparseSearch(ctx context.Context, collection string, req qdrant.SearchRequest) ([]qdrant.SearchResult, error)
}

// Candidate is a retrieved document chunk with its fused score.
type Candidate struct {
	DocID      string  `json:"doc_id"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
}

// Result holds the fused candidate list and retrieval diagnostics.
type Result struct {
	// Candidates are fused results in descending score order.
	Candidates []Candidate

	// ListsFused is the number of ranked lists that contributed.
	ListsFused int

	// Degraded is true when at least one modality or variant failed
	// but retrieval still produced results.
	Degraded bool
}

// Options control a single retrieval call.
type Options struct {
	// Mode selects dense-only or hybrid retrieval.
	Mode Mode

	// Limit caps the fused candidate list.
	Limit int
}

// Retriever fans out searches for each query variant and modality.
type Retriever struct {
	searcher   VectorSearcher
	inference  inference.Service
	collection string
	cfg        config.RetrievalConfig
	log        *logger.Logger
}

// New creates a Retriever.
func New(searcher VectorSearcher, inf inference.Service, collection string, cfg config.RetrievalConfig, log *logger.Logger) *Retriever {
	return &Retriever{
		searcher:   searcher,
		inference:  inf,
		collection: collection,
		cfg:        cfg,
		log:        log,
	}
}

// Retrieve runs one search per query variant per modality, fuses the
// ranked lists with RRF and returns the top candidates. Individual
// searches may fail without failing the call; only when every list
// fails is a retrieval unavailable error returned.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, opts Options) (*Result, error) {
	if len(queries) == 0 {
		return nil, errors.New(errors.CodeValidation, "at least one query is required")
	}

	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Limit <= 0 {
		opts.Limit = r.cfg.CandidateLimit
	}

	if r.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	degraded := false

	// Encode all variants up front; one batched call per modality.
	dense, err := r.inference.Embed(ctx, queries)
	if err != nil {
		r.log.Warn("dense encoding failed", "error", err)
		dense = nil
		degraded = true
	}

	var sparse []inference.SparseVector
	if opts.Mode == ModeHybrid {
		sparse, err = r.inference.SparseEncode(ctx, queries)
		if err != nil {
			r.log.Warn("sparse encoding failed", "error", err)
			sparse = nil
			degraded = true
		}
	}

	if dense == nil && sparse == nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.TimeoutError("retrieval")
		}
		return nil, errors.New(errors.CodeRetrievalUnavailable, "all retrieval modalities unavailable")
	}

	type searchJob struct {
		variant  int
		modality string
	}

	var jobs []searchJob
	for i := range queries {
		if dense != nil {
			jobs = append(jobs, searchJob{variant: i, modality: "dense"})
		}
		if sparse != nil {
			jobs = append(jobs, searchJob{variant: i, modality: "sparse"})
		}
	}

	lists := make([][]qdrant.SearchResult, len(jobs))
	var mu sync.Mutex
	failures := 0

	g, gctx := errgroup.WithContext(ctx)
	for idx, job := range jobs {
		g.Go(func() error {
			req := qdrant.SearchRequest{
				Limit:       uint64(opts.Limit),
				WithPayload: true,
			}

			var (
				results []qdrant.SearchResult
				err     error
			)
			switch job.modality {
			case "dense":
				req.DenseVector = dense[job.variant]
				results, err = r.searcher.DenseSearch(gctx, r.collection, req)
			case "sparse":
				req.SparseIndices = sparse[job.variant].Indices
				req.SparseValues = sparse[job.variant].Values
				results, err = r.searcher.SparseSearch(gctx, r.collection, req)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.log.Warn("search failed",
					"modality", job.modality,
					"variant", job.variant,
					"error", err)
				failures++
				return nil
			}
			lists[idx] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(errors.CodeRetrievalUnavailable, "retrieval aborted", err)
	}

	if failures == len(jobs) {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.TimeoutError("retrieval")
		}
		return nil, errors.New(errors.CodeRetrievalUnavailable, "all retrieval searches failed")
	}
	if failures > 0 {
		degraded = true
	}

	fusable := make([][]qdrant.SearchResult, 0, len(lists))
	for _, list := range lists {
		if list != nil {
			fusable = append(fusable, list)
		}
	}

	fused := fusion.Fuse(fusable, r.cfg.RRFConstant)
	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}

	candidates := make([]Candidate, 0, len(fused))
	for _, sr := range fused {
		candidates = append(candidates, Candidate{
			DocID:      sr.Result.Payload.DocID,
			Source:     sr.Result.Payload.Source,
			Content:    sr.Result.Payload.Content,
			ChunkIndex: sr.Result.Payload.ChunkIndex,
			Score:      sr.FusedScore,
		})
	}

	return &Result{
		Candidates: candidates,
		ListsFused: len(fusable),
		Degraded:   degraded,
	}, nil
}
