package evaluation

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// textColumnLimit caps free-text CSV columns so spreadsheets stay usable.
const textColumnLimit = 100

var csvHeader = []string{
	"question", "answer", "ground_truth", "profile_id", "routing_decision",
	"recall_at_5", "recall_at_10", "ndcg_at_10", "mrr",
	"faithfulness", "answer_relevancy", "context_precision", "context_recall",
	"total_latency_ms", "retrieval_ms", "rerank_ms", "generation_ms",
}

// ExportJSON writes the results as an indented JSON array.
func ExportJSON(w io.Writer, results []Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}

// ExportCSV writes one row per result. Missing metric values become
// empty cells rather than zeros so nulls stay distinguishable.
func ExportCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, res := range results {
		row := []string{
			truncateText(res.Question),
			truncateText(res.Answer),
			truncateText(res.GroundTruth),
			res.ProfileID,
			string(res.RoutingDecision),
			formatMetric(res.Retrieval.RecallAt5),
			formatMetric(res.Retrieval.RecallAt10),
			formatMetric(res.Retrieval.NDCGAt10),
			formatMetric(res.Retrieval.MRR),
			formatMetric(res.Generation.Faithfulness),
			formatMetric(res.Generation.AnswerRelevancy),
			formatMetric(res.Generation.ContextPrecision),
			formatMetric(res.Generation.ContextRecall),
			formatLatency(res.Latency.TotalMS),
			formatLatency(res.Latency.RetrievalMS),
			formatLatency(res.Latency.RerankMS),
			formatLatency(res.Latency.GenerationMS),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func truncateText(s string) string {
	runes := []rune(s)
	if len(runes) <= textColumnLimit {
		return s
	}
	return string(runes[:textColumnLimit])
}

func formatMetric(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}

func formatLatency(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 1, 64)
}
