package evaluation

import (
	"time"

	"github.com/docuchat/rag-server/internal/router"
)

// Sample is one evaluation input: a question with optional ground
// truth for generation scoring and optional relevance labels for
// retrieval scoring.
type Sample struct {
	Question       string   `json:"question"`
	GroundTruth    string   `json:"ground_truth,omitempty"`
	RelevantDocIDs []string `json:"relevant_doc_ids,omitempty"`
}

// RetrievalMetrics are rank-based retrieval scores. Pointers are nil
// when the sample carried no relevance labels.
type RetrievalMetrics struct {
	RecallAt5  *float64 `json:"recall_at_5"`
	RecallAt10 *float64 `json:"recall_at_10"`
	NDCGAt10   *float64 `json:"ndcg_at_10"`
	MRR        *float64 `json:"mrr"`
	HitAt5     *bool    `json:"hit_at_5"`
	HitAt10    *bool    `json:"hit_at_10"`
}

// GenerationMetrics are LLM-judged answer quality scores. Pointers are
// nil when the scoring service was unavailable or the sample carried
// no ground truth.
type GenerationMetrics struct {
	Faithfulness     *float64 `json:"faithfulness"`
	AnswerRelevancy  *float64 `json:"answer_relevancy"`
	ContextPrecision *float64 `json:"context_precision"`
	ContextRecall    *float64 `json:"context_recall"`
}

// RetrievedDocument is one retrieved passage as the evaluated pipeline
// ranked it. Rank is 1-based in final order.
type RetrievedDocument struct {
	DocID   string  `json:"doc_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// LatencyMetrics break down where the evaluated request spent time.
type LatencyMetrics struct {
	TotalMS        float64 `json:"total_ms"`
	QueryRewriteMS float64 `json:"query_rewrite_ms"`
	RetrievalMS    float64 `json:"retrieval_ms"`
	RerankMS       float64 `json:"rerank_ms"`
	GenerationMS   float64 `json:"generation_ms"`
}

// Result is the full evaluation output for one sample.
type Result struct {
	Question        string              `json:"question"`
	Answer          string              `json:"answer"`
	GroundTruth     string              `json:"ground_truth,omitempty"`
	ProfileID       string              `json:"profile_id"`
	RoutingDecision router.Decision     `json:"routing_decision"`
	RetrievedDocIDs []string            `json:"retrieved_doc_ids"`
	RetrievedDocs   []RetrievedDocument `json:"retrieved_docs"`

	Retrieval  RetrievalMetrics  `json:"retrieval"`
	Generation GenerationMetrics `json:"generation"`
	Latency    LatencyMetrics    `json:"latency"`

	Error string `json:"error,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// AggregatedMetrics are means over a batch, skipping nil per-sample
// values. A nil aggregate means no sample produced that metric.
type AggregatedMetrics struct {
	AvgRecallAt5  *float64 `json:"avg_recall_at_5"`
	AvgRecallAt10 *float64 `json:"avg_recall_at_10"`
	AvgNDCGAt10   *float64 `json:"avg_ndcg_at_10"`
	AvgMRR        *float64 `json:"avg_mrr"`
	HitRateAt5    *float64 `json:"hit_rate_at_5"`
	HitRateAt10   *float64 `json:"hit_rate_at_10"`

	AvgFaithfulness     *float64 `json:"avg_faithfulness"`
	AvgAnswerRelevancy  *float64 `json:"avg_answer_relevancy"`
	AvgContextPrecision *float64 `json:"avg_context_precision"`
	AvgContextRecall    *float64 `json:"avg_context_recall"`

	AvgTotalLatencyMS      float64 `json:"avg_total_latency_ms"`
	AvgRetrievalLatencyMS  float64 `json:"avg_retrieval_latency_ms"`
	AvgRerankLatencyMS     float64 `json:"avg_rerank_latency_ms"`
	AvgGenerationLatencyMS float64 `json:"avg_generation_latency_ms"`

	TotalSamples  int `json:"total_samples"`
	FailedSamples int `json:"failed_samples"`
}

// BatchResult is the output of a batch evaluation run.
type BatchResult struct {
	ProfileID  string            `json:"profile_id"`
	Results    []Result          `json:"results"`
	Aggregated AggregatedMetrics `json:"aggregated"`
	StartedAt  time.Time         `json:"started_at"`
	DurationMS float64           `json:"duration_ms"`
}
