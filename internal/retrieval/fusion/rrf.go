// Package fusion provides reciprocal rank fusion over ranked result lists.
package fusion

import (
	"sort"

	"github.com/docuchat/rag-server/internal/qdrant"
)

const (
	// DefaultK is the RRF smoothing constant.
	// Higher values reduce the impact of rank position differences.
	DefaultK = 60
)

// ScoredResult represents a result with its combined RRF score.
type ScoredResult struct {
	// Result is the original Qdrant result.
	Result qdrant.SearchResult

	// FusedScore is the combined RRF score across all lists.
	FusedScore float64

	// BestRank is the lowest 1-based rank the result achieved in any list.
	BestRank int

	// Appearances is the number of lists the result appeared in.
	Appearances int
}

// Fuse combines any number of ranked result lists using reciprocal rank
// fusion. Each list contributes 1/(k + rank) per occurrence, with rank
// 1-based. Results appearing in multiple lists accumulate contributions.
//
// Ordering is deterministic: descending fused score, then lowest best
// rank, then document ID.
func Fuse(lists [][]qdrant.SearchResult, k int) []ScoredResult {
	if k <= 0 {
		k = DefaultK
	}

	scores := make(map[string]*ScoredResult)

	for _, list := range lists {
		for rank, r := range list {
			key := fusionKey(r)
			sr := scores[key]
			if sr == nil {
				sr = &ScoredResult{
					Result:   r,
					BestRank: rank + 1,
				}
				scores[key] = sr
			}
			if rank+1 < sr.BestRank {
				sr.BestRank = rank + 1
			}
			sr.Appearances++
			sr.FusedScore += 1.0 / float64(k+rank+1)
		}
	}

	results := make([]ScoredResult, 0, len(scores))
	for _, sr := range scores {
		results = append(results, *sr)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].BestRank != results[j].BestRank {
			return results[i].BestRank < results[j].BestRank
		}
		return fusionKey(results[i].Result) < fusionKey(results[j].Result)
	})

	return results
}

// fusionKey identifies a result across lists. Results carrying a doc_id
// fuse per document so the same document surfaced by different query
// variants or modalities accumulates a single score.
func fusionKey(r qdrant.SearchResult) string {
	if r.Payload.DocID != "" {
		return r.Payload.DocID
	}
	return r.ID
}
