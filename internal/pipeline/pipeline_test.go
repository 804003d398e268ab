package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/docuchat/rag-server/internal/generate"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
	"github.com/docuchat/rag-server/internal/retrieval"
	"github.com/docuchat/rag-server/internal/router"
)

type fakeRouter struct {
	decision router.Decision
	err      error
}

func (f *fakeRouter) Route(ctx context.Context, question string) (router.Decision, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.decision, nil
}

type fakeRewriter struct {
	variants []string
	calls    int
}

func (f *fakeRewriter) Rewrite(ctx context.Context, question string, n int) []string {
	f.calls++
	if f.variants != nil {
		return f.variants
	}
	return []string{question}
}

type fakeRetriever struct {
	result      *retrieval.Result
	err         error
	lastQueries []string
	lastOpts    retrieval.Options
}

func (f *fakeRetriever) Retrieve(ctx context.Context, queries []string, opts retrieval.Options) (*retrieval.Result, error) {
	f.lastQueries = queries
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeReranker struct {
	result []retrieval.Candidate
	err    error
	calls  int
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, candidates []retrieval.Candidate, topK int) ([]retrieval.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	answer      *generate.Answer
	err         error
	directCalls int
	genCalls    int
}

func (f *fakeGenerator) Generate(ctx context.Context, question string, candidates []retrieval.Candidate) (*generate.Answer, error) {
	f.genCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) Direct(ctx context.Context, question string) (*generate.Answer, error) {
	f.directCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func cands(ids ...string) []retrieval.Candidate {
	out := make([]retrieval.Candidate, len(ids))
	for i, id := range ids {
		out[i] = retrieval.Candidate{DocID: id, Content: "content " + id}
	}
	return out
}

func fullProfile() profile.Profile {
	return profile.Profile{
		ID:                    "hybrid_rerank",
		RetrieverType:         profile.RetrieverHybrid,
		InitialRetrievalLimit: 30,
		UseReranker:           true,
		RerankTopK:            10,
		UseQueryRewrite:       true,
		NumRewriteQueries:     5,
	}
}

func TestRunFullPipeline(t *testing.T) {
	rt := &fakeRouter{decision: router.DecisionVectorstore}
	rw := &fakeRewriter{variants: []string{"q", "variant"}}
	rtr := &fakeRetriever{result: &retrieval.Result{Candidates: cands("a", "b", "c")}}
	rr := &fakeReranker{result: cands("c", "a")}
	gen := &fakeGenerator{answer: &generate.Answer{
		Text: "answer [1]",
		Sources: []generate.Source{
			{Marker: "[1]", DocID: "c"},
			{Marker: "[2]", DocID: "a"},
		},
	}}

	p := New(rt, rw, rtr, rr, gen, logger.Default())

	resp, err := p.Run(context.Background(), "q", fullProfile())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if resp.RoutingDecision != router.DecisionVectorstore {
		t.Errorf("RoutingDecision = %s", resp.RoutingDecision)
	}
	if rw.calls != 1 {
		t.Errorf("rewrite calls = %d, want 1", rw.calls)
	}
	if len(rtr.lastQueries) != 2 {
		t.Errorf("retriever got %d queries, want 2", len(rtr.lastQueries))
	}
	if rtr.lastOpts.Mode != retrieval.ModeHybrid {
		t.Errorf("mode = %s, want hybrid", rtr.lastOpts.Mode)
	}
	if rtr.lastOpts.Limit != 30 {
		t.Errorf("limit = %d, want 30", rtr.lastOpts.Limit)
	}
	if rr.calls != 1 {
		t.Errorf("rerank calls = %d, want 1", rr.calls)
	}
	if resp.Answer != "answer [1]" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	// Reranked order flows into retrieved doc IDs.
	if len(resp.RetrievedDocIDs) != 2 || resp.RetrievedDocIDs[0] != "c" {
		t.Errorf("RetrievedDocIDs = %v, want [c a]", resp.RetrievedDocIDs)
	}
	if resp.Latency.TotalMS <= 0 {
		t.Errorf("TotalMS = %f, want > 0", resp.Latency.TotalMS)
	}
}

func TestRunDirectPath(t *testing.T) {
	rt := &fakeRouter{decision: router.DecisionLLM}
	rw := &fakeRewriter{}
	rtr := &fakeRetriever{err: fmt.Errorf("retriever should not be called")}
	gen := &fakeGenerator{answer: &generate.Answer{Text: "hello!"}}

	p := New(rt, rw, rtr, &fakeReranker{}, gen, logger.Default())

	resp, err := p.Run(context.Background(), "hi", fullProfile())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if resp.Answer != "hello!" {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if gen.directCalls != 1 || gen.genCalls != 0 {
		t.Errorf("direct/gen calls = %d/%d, want 1/0", gen.directCalls, gen.genCalls)
	}
	if len(resp.Sources) != 0 {
		t.Errorf("Sources = %v, want none", resp.Sources)
	}
	if rw.calls != 0 {
		t.Errorf("rewrite calls = %d, want 0 on direct path", rw.calls)
	}
}

func TestRunProfileDisablesStages(t *testing.T) {
	rt := &fakeRouter{decision: router.DecisionVectorstore}
	rw := &fakeRewriter{}
	rtr := &fakeRetriever{result: &retrieval.Result{Candidates: cands("a")}}
	rr := &fakeReranker{}
	gen := &fakeGenerator{answer: &generate.Answer{Text: "a"}}

	p := New(rt, rw, rtr, rr, gen, logger.Default())

	baseline := profile.Profile{
		ID:                    "baseline",
		RetrieverType:         profile.RetrieverDense,
		InitialRetrievalLimit: 10,
	}

	_, err := p.Run(context.Background(), "q", baseline)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rw.calls != 0 {
		t.Errorf("rewrite calls = %d, want 0", rw.calls)
	}
	if rr.calls != 0 {
		t.Errorf("rerank calls = %d, want 0", rr.calls)
	}
	if rtr.lastOpts.Mode != retrieval.ModeDense {
		t.Errorf("mode = %s, want dense", rtr.lastOpts.Mode)
	}
}

func TestRunRerankFailureFallsBack(t *testing.T) {
	rt := &fakeRouter{decision: router.DecisionVectorstore}
	rtr := &fakeRetriever{result: &retrieval.Result{
		Candidates: cands("a", "b", "c", "d"),
	}}
	rr := &fakeReranker{err: errors.New(errors.CodeRerankError, "model down")}
	gen := &fakeGenerator{answer: &generate.Answer{Text: "a"}}

	p := New(rt, &fakeRewriter{}, rtr, rr, gen, logger.Default())

	prof := fullProfile()
	prof.RerankTopK = 2

	resp, err := p.Run(context.Background(), "q", prof)
	if err != nil {
		t.Fatalf("Run() error = %v, want fallback not failure", err)
	}

	if !resp.Degraded {
		t.Error("expected degraded response after rerank failure")
	}
	if len(resp.Warnings) == 0 {
		t.Error("expected a warning after rerank failure")
	}
	// Fused order truncated to top K.
	if len(resp.RetrievedDocIDs) != 2 || resp.RetrievedDocIDs[0] != "a" {
		t.Errorf("RetrievedDocIDs = %v, want fused order [a b]", resp.RetrievedDocIDs)
	}
}

func TestRunRetrievalFailurePropagates(t *testing.T) {
	rt := &fakeRouter{decision: router.DecisionVectorstore}
	rtr := &fakeRetriever{err: errors.New(errors.CodeRetrievalUnavailable, "all searches failed")}

	p := New(rt, &fakeRewriter{}, rtr, &fakeReranker{}, &fakeGenerator{}, logger.Default())

	_, err := p.Run(context.Background(), "q", fullProfile())
	if err == nil {
		t.Fatal("Run() = nil, want retrieval error")
	}
	if !errors.IsCode(err, errors.CodeRetrievalUnavailable) {
		t.Errorf("error code mismatch: %v", err)
	}
}

func TestRunRoutingFailurePropagates(t *testing.T) {
	rt := &fakeRouter{err: errors.New(errors.CodeValidation, "empty question")}

	p := New(rt, &fakeRewriter{}, &fakeRetriever{}, &fakeReranker{}, &fakeGenerator{}, logger.Default())

	_, err := p.Run(context.Background(), "", fullProfile())
	if err == nil {
		t.Fatal("Run() = nil, want validation error")
	}
}
