// Package pipeline composes routing, rewriting, retrieval, reranking
// and generation into a single query flow driven by a profile.
package pipeline

import (
	"context"
	"time"

	"github.com/docuchat/rag-server/internal/generate"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
	"github.com/docuchat/rag-server/internal/retrieval"
	"github.com/docuchat/rag-server/internal/router"
)

// Latency breaks down where a request spent its time.
type Latency struct {
	TotalMS      float64 `json:"total_ms"`
	RoutingMS    float64 `json:"routing_ms"`
	RewriteMS    float64 `json:"rewrite_ms"`
	RetrievalMS  float64 `json:"retrieval_ms"`
	RerankMS     float64 `json:"rerank_ms"`
	GenerationMS float64 `json:"generation_ms"`
}

// Response is the full pipeline output for one question.
type Response struct {
	Question        string            `json:"question"`
	Answer          string            `json:"answer"`
	Sources         []generate.Source `json:"sources"`
	RetrievedDocIDs []string          `json:"retrieved_doc_ids"`
	RoutingDecision router.Decision   `json:"routing_decision"`
	ProfileID       string            `json:"profile_id"`
	QueryVariants   []string          `json:"query_variants,omitempty"`
	Degraded        bool              `json:"degraded,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Latency         Latency           `json:"latency"`
}

// Reranker reorders candidates; see the rerank package.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]retrieval.Candidate, error)
}

// Retriever produces fused candidates; see the retrieval package.
type Retriever interface {
	Retrieve(ctx context.Context, queries []string, opts retrieval.Options) (*retrieval.Result, error)
}

// Generator produces answers; see the generate package.
type Generator interface {
	Generate(ctx context.Context, question string, candidates []retrieval.Candidate) (*generate.Answer, error)
	Direct(ctx context.Context, question string) (*generate.Answer, error)
}

// Router classifies questions; see the router package.
type Router interface {
	Route(ctx context.Context, question string) (router.Decision, error)
}

// Rewriter expands questions; see the rewrite package.
type Rewriter interface {
	Rewrite(ctx context.Context, question string, numQueries int) []string
}

// Pipeline runs questions through the configured stages.
type Pipeline struct {
	router    Router
	rewriter  Rewriter
	retriever Retriever
	reranker  Reranker
	generator Generator
	log       *logger.Logger
}

// New creates a Pipeline.
func New(rt Router, rw Rewriter, rtr Retriever, rr Reranker, gen Generator, log *logger.Logger) *Pipeline {
	return &Pipeline{
		router:    rt,
		rewriter:  rw,
		retriever: rtr,
		reranker:  rr,
		generator: gen,
		log:       log,
	}
}

// Run answers a question using the stages the profile enables.
func (p *Pipeline) Run(ctx context.Context, question string, prof profile.Profile) (*Response, error) {
	start := time.Now()

	resp := &Response{
		Question:  question,
		ProfileID: prof.ID,
	}

	// Routing.
	routeStart := time.Now()
	decision, err := p.router.Route(ctx, question)
	if err != nil {
		return nil, err
	}
	resp.RoutingDecision = decision
	resp.Latency.RoutingMS = msSince(routeStart)

	// Direct answer path skips retrieval entirely.
	if decision == router.DecisionLLM {
		genStart := time.Now()
		ans, err := p.generator.Direct(ctx, question)
		if err != nil {
			return nil, err
		}
		resp.Answer = ans.Text
		resp.Latency.GenerationMS = msSince(genStart)
		resp.Latency.TotalMS = msSince(start)
		return resp, nil
	}

	// Query expansion.
	queries := []string{question}
	if prof.UseQueryRewrite {
		rwStart := time.Now()
		queries = p.rewriter.Rewrite(ctx, question, prof.NumRewriteQueries)
		resp.Latency.RewriteMS = msSince(rwStart)
	}
	resp.QueryVariants = queries

	// Hybrid retrieval with fusion.
	retrStart := time.Now()
	mode := retrieval.ModeHybrid
	if prof.RetrieverType == profile.RetrieverDense {
		mode = retrieval.ModeDense
	}
	result, err := p.retriever.Retrieve(ctx, queries, retrieval.Options{
		Mode:  mode,
		Limit: prof.InitialRetrievalLimit,
	})
	if err != nil {
		return nil, err
	}
	resp.Latency.RetrievalMS = msSince(retrStart)
	resp.Degraded = result.Degraded
	if result.Degraded {
		resp.Warnings = append(resp.Warnings, "retrieval degraded: one or more modalities unavailable")
	}

	candidates := result.Candidates

	// Reranking. A failed rerank falls back to the fused order rather
	// than failing the request.
	if prof.UseReranker {
		rrStart := time.Now()
		reranked, err := p.reranker.Rerank(ctx, question, candidates, prof.RerankTopK)
		if err != nil {
			p.log.Warn("rerank failed, using fused order", "error", err, "profile", prof.ID)
			resp.Warnings = append(resp.Warnings, "rerank unavailable: results in fused order")
			resp.Degraded = true
			if prof.RerankTopK > 0 && len(candidates) > prof.RerankTopK {
				candidates = candidates[:prof.RerankTopK]
			}
		} else {
			candidates = reranked
		}
		resp.Latency.RerankMS = msSince(rrStart)
	}

	for _, c := range candidates {
		resp.RetrievedDocIDs = append(resp.RetrievedDocIDs, c.DocID)
	}

	// Generation.
	genStart := time.Now()
	ans, err := p.generator.Generate(ctx, question, candidates)
	if err != nil {
		return nil, err
	}
	resp.Answer = ans.Text
	resp.Sources = ans.Sources
	resp.Latency.GenerationMS = msSince(genStart)

	resp.Latency.TotalMS = msSince(start)
	return resp, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
