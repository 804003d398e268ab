package fusion

import (
	"math"
	"testing"

	"github.com/docuchat/rag-server/internal/qdrant"
)

func result(docID string, score float32) qdrant.SearchResult {
	return qdrant.SearchResult{
		ID:    "pt_" + docID,
		Score: score,
		Payload: qdrant.PointPayload{
			DocID:   docID,
			Content: "content for " + docID,
		},
	}
}

func TestFuseSingleList(t *testing.T) {
	list := []qdrant.SearchResult{
		result("a", 0.9),
		result("b", 0.8),
		result("c", 0.7),
	}

	fused := Fuse([][]qdrant.SearchResult{list}, 60)

	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}

	// Order preserved: rank 1 gets the largest contribution.
	if fused[0].Result.Payload.DocID != "a" {
		t.Errorf("expected 'a' first, got %s", fused[0].Result.Payload.DocID)
	}

	want := 1.0 / 61.0
	if math.Abs(fused[0].FusedScore-want) > 1e-9 {
		t.Errorf("expected score %f, got %f", want, fused[0].FusedScore)
	}
}

func TestFuseAccumulatesAcrossLists(t *testing.T) {
	dense := []qdrant.SearchResult{
		result("a", 0.9),
		result("b", 0.8),
	}
	sparse := []qdrant.SearchResult{
		result("b", 12.0),
		result("c", 8.0),
	}

	fused := Fuse([][]qdrant.SearchResult{dense, sparse}, 60)

	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}

	// "b" appears in both lists (ranks 2 and 1) and must win over
	// single-list "a" (rank 1) and "c" (rank 2).
	if fused[0].Result.Payload.DocID != "b" {
		t.Errorf("expected 'b' first, got %s", fused[0].Result.Payload.DocID)
	}

	wantB := 1.0/62.0 + 1.0/61.0
	if math.Abs(fused[0].FusedScore-wantB) > 1e-9 {
		t.Errorf("expected score %f, got %f", wantB, fused[0].FusedScore)
	}

	if fused[0].Appearances != 2 {
		t.Errorf("expected 2 appearances, got %d", fused[0].Appearances)
	}
	if fused[0].BestRank != 1 {
		t.Errorf("expected best rank 1, got %d", fused[0].BestRank)
	}
}

func TestFuseTieBreaks(t *testing.T) {
	// "x" and "y" each appear once at rank 1 in different lists: equal
	// scores and equal best rank, so doc ID decides.
	listA := []qdrant.SearchResult{result("y", 0.9)}
	listB := []qdrant.SearchResult{result("x", 0.9)}

	fused := Fuse([][]qdrant.SearchResult{listA, listB}, 60)

	if len(fused) != 2 {
		t.Fatalf("expected 2 results, got %d", len(fused))
	}
	if fused[0].Result.Payload.DocID != "x" {
		t.Errorf("expected 'x' first on doc ID tie-break, got %s", fused[0].Result.Payload.DocID)
	}
}

func TestFuseTieBreaksByBestRank(t *testing.T) {
	// "a": rank 1 and rank 3. "b": rank 2 twice. With k chosen so the
	// sums differ we cannot tie, so craft equal sums via symmetry:
	// 1/(k+1)+1/(k+3) vs 2/(k+2) are unequal for all k>0, so instead
	// verify best rank ordering kicks in only on exact score ties.
	listA := []qdrant.SearchResult{result("a", 0.9), result("b", 0.8)}
	listB := []qdrant.SearchResult{result("b", 0.9), result("a", 0.8)}

	fused := Fuse([][]qdrant.SearchResult{listA, listB}, 60)

	// Both have score 1/61 + 1/62 and best rank 1; doc ID breaks the tie.
	if fused[0].Result.Payload.DocID != "a" {
		t.Errorf("expected 'a' first, got %s", fused[0].Result.Payload.DocID)
	}
}

func TestFuseEmptyLists(t *testing.T) {
	fused := Fuse(nil, 60)
	if len(fused) != 0 {
		t.Errorf("expected empty result, got %d", len(fused))
	}

	fused = Fuse([][]qdrant.SearchResult{{}, {}}, 60)
	if len(fused) != 0 {
		t.Errorf("expected empty result, got %d", len(fused))
	}
}

func TestFuseDefaultK(t *testing.T) {
	list := []qdrant.SearchResult{result("a", 0.9)}

	fused := Fuse([][]qdrant.SearchResult{list}, 0)

	want := 1.0 / float64(DefaultK+1)
	if math.Abs(fused[0].FusedScore-want) > 1e-9 {
		t.Errorf("expected default k score %f, got %f", want, fused[0].FusedScore)
	}
}

func TestFuseDeterministic(t *testing.T) {
	lists := [][]qdrant.SearchResult{
		{result("d", 0.9), result("b", 0.8), result("a", 0.7)},
		{result("c", 11.0), result("a", 9.0), result("d", 7.0)},
	}

	first := Fuse(lists, 60)
	for i := 0; i < 10; i++ {
		again := Fuse(lists, 60)
		for j := range first {
			if first[j].Result.Payload.DocID != again[j].Result.Payload.DocID {
				t.Fatalf("non-deterministic ordering at position %d", j)
			}
		}
	}
}
