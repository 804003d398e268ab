package evaluation

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/rag-server/internal/pipeline"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/profile"
)

// Pipeline answers questions; see the pipeline package.
type Pipeline interface {
	Run(ctx context.Context, question string, prof profile.Profile) (*pipeline.Response, error)
}

// Runner evaluates samples by running them through the pipeline and
// scoring the outputs.
type Runner struct {
	pipeline    Pipeline
	scorer      Scorer
	concurrency int
	log         *logger.Logger
}

// NewRunner creates a Runner. concurrency <= 0 selects 4.
func NewRunner(p Pipeline, scorer Scorer, concurrency int, log *logger.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Runner{
		pipeline:    p,
		scorer:      scorer,
		concurrency: concurrency,
		log:         log,
	}
}

// EvaluateSingle runs one sample through the pipeline and computes all
// applicable metrics. Generation scoring runs only when withGeneration
// is set and the scorer is reachable. Pipeline failures are captured in
// the result rather than returned: a batch keeps going when one sample
// fails.
func (r *Runner) EvaluateSingle(ctx context.Context, sample Sample, prof profile.Profile, withGeneration bool) Result {
	result := Result{
		Question:    sample.Question,
		GroundTruth: sample.GroundTruth,
		ProfileID:   prof.ID,
		EvaluatedAt: time.Now().UTC(),
	}

	resp, err := r.pipeline.Run(ctx, sample.Question, prof)
	if err != nil {
		r.log.Warn("evaluation sample failed", "question", sample.Question, "error", err)
		result.Error = err.Error()
		return result
	}

	result.Answer = resp.Answer
	result.RoutingDecision = resp.RoutingDecision
	result.RetrievedDocIDs = resp.RetrievedDocIDs
	for i, src := range resp.Sources {
		result.RetrievedDocs = append(result.RetrievedDocs, RetrievedDocument{
			DocID:   src.DocID,
			Content: src.Content,
			Score:   src.Score,
			Rank:    i + 1,
		})
	}
	result.Latency = LatencyMetrics{
		TotalMS:        resp.Latency.TotalMS,
		QueryRewriteMS: resp.Latency.RewriteMS,
		RetrievalMS:    resp.Latency.RetrievalMS,
		RerankMS:       resp.Latency.RerankMS,
		GenerationMS:   resp.Latency.GenerationMS,
	}

	result.Retrieval = RetrievalMetrics{
		RecallAt5:  RecallAtK(resp.RetrievedDocIDs, sample.RelevantDocIDs, 5),
		RecallAt10: RecallAtK(resp.RetrievedDocIDs, sample.RelevantDocIDs, 10),
		NDCGAt10:   NDCGAtK(resp.RetrievedDocIDs, sample.RelevantDocIDs, 10),
		MRR:        MRR(resp.RetrievedDocIDs, sample.RelevantDocIDs),
		HitAt5:     HitAtK(resp.RetrievedDocIDs, sample.RelevantDocIDs, 5),
		HitAt10:    HitAtK(resp.RetrievedDocIDs, sample.RelevantDocIDs, 10),
	}

	if withGeneration && r.scorer != nil && r.scorer.Available(ctx) {
		contexts := make([]string, 0, len(resp.Sources))
		for _, s := range resp.Sources {
			contexts = append(contexts, s.Content)
		}

		gen, err := r.scorer.Score(ctx, ScoreRequest{
			Question:    sample.Question,
			Answer:      resp.Answer,
			GroundTruth: sample.GroundTruth,
			Contexts:    contexts,
		})
		if err != nil {
			r.log.Warn("answer scoring failed", "error", err)
		} else {
			result.Generation = gen
		}
	}

	return result
}

// EvaluateBatch evaluates all samples with bounded concurrency. Result
// order matches sample order regardless of completion order.
func (r *Runner) EvaluateBatch(ctx context.Context, samples []Sample, prof profile.Profile, withGeneration bool) BatchResult {
	started := time.Now()

	results := make([]Result, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, sample := range samples {
		g.Go(func() error {
			results[i] = r.EvaluateSingle(gctx, sample, prof, withGeneration)
			return nil
		})
	}

	// Workers never return errors; failures live in the results.
	_ = g.Wait()

	return BatchResult{
		ProfileID:  prof.ID,
		Results:    results,
		Aggregated: Aggregate(results),
		StartedAt:  started.UTC(),
		DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
	}
}

// Aggregate computes mean metrics over a batch. Per-sample nil values
// are skipped; an aggregate is nil only when every sample was nil.
// Failed samples contribute to the failure count and nothing else.
func Aggregate(results []Result) AggregatedMetrics {
	agg := AggregatedMetrics{
		TotalSamples: len(results),
	}

	var (
		recall5, recall10, ndcg10, mrr                         meanAcc
		hit5, hit10                                            rateAcc
		faithfulness, answerRelevancy, ctxPrecision, ctxRecall meanAcc
		total, retrievalLat, rerankLat, generationLat          float64
		succeeded                                              int
	)

	for _, res := range results {
		if res.Error != "" {
			agg.FailedSamples++
			continue
		}
		succeeded++

		recall5.add(res.Retrieval.RecallAt5)
		recall10.add(res.Retrieval.RecallAt10)
		ndcg10.add(res.Retrieval.NDCGAt10)
		mrr.add(res.Retrieval.MRR)
		hit5.add(res.Retrieval.HitAt5)
		hit10.add(res.Retrieval.HitAt10)

		faithfulness.add(res.Generation.Faithfulness)
		answerRelevancy.add(res.Generation.AnswerRelevancy)
		ctxPrecision.add(res.Generation.ContextPrecision)
		ctxRecall.add(res.Generation.ContextRecall)

		total += res.Latency.TotalMS
		retrievalLat += res.Latency.RetrievalMS
		rerankLat += res.Latency.RerankMS
		generationLat += res.Latency.GenerationMS
	}

	agg.AvgRecallAt5 = recall5.mean()
	agg.AvgRecallAt10 = recall10.mean()
	agg.AvgNDCGAt10 = ndcg10.mean()
	agg.AvgMRR = mrr.mean()
	agg.HitRateAt5 = hit5.mean()
	agg.HitRateAt10 = hit10.mean()

	agg.AvgFaithfulness = faithfulness.mean()
	agg.AvgAnswerRelevancy = answerRelevancy.mean()
	agg.AvgContextPrecision = ctxPrecision.mean()
	agg.AvgContextRecall = ctxRecall.mean()

	if succeeded > 0 {
		n := float64(succeeded)
		agg.AvgTotalLatencyMS = total / n
		agg.AvgRetrievalLatencyMS = retrievalLat / n
		agg.AvgRerankLatencyMS = rerankLat / n
		agg.AvgGenerationLatencyMS = generationLat / n
	}

	return agg
}

// meanAcc accumulates non-nil values for averaging.
type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.count++
}

func (m *meanAcc) mean() *float64 {
	if m.count == 0 {
		return nil
	}
	v := m.sum / float64(m.count)
	return &v
}

// rateAcc accumulates non-nil booleans into a hit rate.
type rateAcc struct {
	hits  int
	count int
}

func (r *rateAcc) add(v *bool) {
	if v == nil {
		return
	}
	if *v {
		r.hits++
	}
	r.count++
}

func (r *rateAcc) mean() *float64 {
	if r.count == 0 {
		return nil
	}
	v := float64(r.hits) / float64(r.count)
	return &v
}
