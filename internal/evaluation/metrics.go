// Package evaluation measures retrieval and generation quality across
// pipeline profiles.
package evaluation

import (
	"math"
)

// RecallAtK returns the fraction of relevant documents found in the
// top k retrieved results. Nil when no relevant documents are known.
func RecallAtK(retrieved, relevant []string, k int) *float64 {
	if len(relevant) == 0 {
		return nil
	}

	topK := truncate(retrieved, k)
	relevantSet := toSet(relevant)

	found := 0
	for _, id := range topK {
		if relevantSet[id] {
			found++
		}
	}

	v := float64(found) / float64(len(relevant))
	return &v
}

// NDCGAtK returns the normalized discounted cumulative gain over the
// top k results with binary relevance. The ideal DCG assumes relevant
// documents fill the first min(|relevant|, k) positions. Nil when no
// relevant documents are known.
func NDCGAtK(retrieved, relevant []string, k int) *float64 {
	if len(relevant) == 0 {
		return nil
	}

	topK := truncate(retrieved, k)
	relevantSet := toSet(relevant)

	dcg := 0.0
	for i, id := range topK {
		if relevantSet[id] {
			dcg += 1.0 / math.Log2(float64(i)+2)
		}
	}

	idealPositions := len(relevant)
	if idealPositions > k {
		idealPositions = k
	}
	idcg := 0.0
	for i := 0; i < idealPositions; i++ {
		idcg += 1.0 / math.Log2(float64(i)+2)
	}

	if idcg == 0 {
		zero := 0.0
		return &zero
	}

	v := dcg / idcg
	return &v
}

// MRR returns the reciprocal rank of the first relevant document, or
// zero when none of the retrieved documents are relevant. Nil when no
// relevant documents are known.
func MRR(retrieved, relevant []string) *float64 {
	if len(relevant) == 0 {
		return nil
	}

	relevantSet := toSet(relevant)
	for i, id := range retrieved {
		if relevantSet[id] {
			v := 1.0 / float64(i+1)
			return &v
		}
	}

	zero := 0.0
	return &zero
}

// HitAtK reports whether any relevant document appears in the top k
// results. Nil when no relevant documents are known.
func HitAtK(retrieved, relevant []string, k int) *bool {
	if len(relevant) == 0 {
		return nil
	}

	topK := truncate(retrieved, k)
	relevantSet := toSet(relevant)

	hit := false
	for _, id := range topK {
		if relevantSet[id] {
			hit = true
			break
		}
	}
	return &hit
}

func truncate(ids []string, k int) []string {
	if k <= 0 || k >= len(ids) {
		return ids
	}
	return ids[:k]
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
