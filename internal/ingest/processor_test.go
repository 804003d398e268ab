package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/qdrant"
)

type fakeInference struct {
	embedErr  error
	sparseErr error
}

func (f *fakeInference) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (f *fakeInference) SparseEncode(ctx context.Context, texts []string) ([]inference.SparseVector, error) {
	if f.sparseErr != nil {
		return nil, f.sparseErr
	}
	out := make([]inference.SparseVector, len(texts))
	for i := range texts {
		out[i] = inference.SparseVector{Indices: []uint32{1}, Values: []float32{0.5}}
	}
	return out, nil
}

func (f *fakeInference) Rerank(ctx context.Context, query string, documents []string, topK int) ([]inference.RankedResult, error) {
	return nil, nil
}

func (f *fakeInference) Health(ctx context.Context) inference.HealthStatus {
	return inference.HealthStatus{Healthy: true}
}

type fakeWriter struct {
	points  []qdrant.Point
	deletes []qdrant.DeleteFilter
	err     error
}

func (f *fakeWriter) UpsertPointsBatch(ctx context.Context, collection string, points []qdrant.Point, batchSize int) error {
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

func (f *fakeWriter) DeletePoints(ctx context.Context, collection string, filter qdrant.DeleteFilter) error {
	f.deletes = append(f.deletes, filter)
	kept := f.points[:0]
	for _, p := range f.points {
		if filter.DocID != "" && p.Payload.DocID == filter.DocID {
			continue
		}
		kept = append(kept, p)
	}
	f.points = kept
	return nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcessorProcess(t *testing.T) {
	writer := &fakeWriter{}
	p := NewProcessor(NewChunker(DefaultChunkerConfig()), &fakeInference{}, writer, "documents", nil)

	path := writeTempFile(t, "doc.txt", "the quick brown fox jumps over the lazy dog")

	chunks, err := p.Process(context.Background(), "doc-1", "doc.txt", path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if chunks != 1 {
		t.Errorf("Process() chunks = %d, want 1", chunks)
	}
	if len(writer.points) != 1 {
		t.Fatalf("upserted %d points, want 1", len(writer.points))
	}

	point := writer.points[0]
	if point.Payload.DocID != "doc-1" {
		t.Errorf("point doc_id = %q, want doc-1", point.Payload.DocID)
	}
	if point.Payload.Source != "doc.txt" {
		t.Errorf("point source = %q, want doc.txt", point.Payload.Source)
	}
	if point.Payload.ChunkIndex != 0 {
		t.Errorf("chunk_index = %d, want 0", point.Payload.ChunkIndex)
	}
	if len(point.DenseVector) == 0 || len(point.SparseIndices) == 0 {
		t.Error("point is missing vectors")
	}
}

func TestProcessorMultipleChunks(t *testing.T) {
	writer := &fakeWriter{}
	p := NewProcessor(NewChunker(ChunkerConfig{TargetSize: 50, Overlap: 10}), &fakeInference{}, writer, "documents", nil)

	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("a line of prose that pads the document out nicely\n")
	}
	path := writeTempFile(t, "long.txt", b.String())

	chunks, err := p.Process(context.Background(), "doc-2", "long.txt", path)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if chunks < 2 {
		t.Fatalf("Process() chunks = %d, want multiple", chunks)
	}

	// Chunk indices must be sequential and point IDs stable per chunk.
	for i, point := range writer.points {
		if point.Payload.ChunkIndex != i {
			t.Errorf("point %d chunk_index = %d", i, point.Payload.ChunkIndex)
		}
		if point.ID != chunkPointID("doc-2", i) {
			t.Errorf("point %d ID not deterministic", i)
		}
	}
}

func TestProcessorReplacesPreviousChunks(t *testing.T) {
	writer := &fakeWriter{}
	p := NewProcessor(NewChunker(ChunkerConfig{TargetSize: 50, Overlap: 10}), &fakeInference{}, writer, "documents", nil)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("a line of prose that pads the document out nicely\n")
	}
	longPath := writeTempFile(t, "notes.txt", b.String())

	first, err := p.Process(context.Background(), "doc-9", "notes.txt", longPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if first < 2 {
		t.Fatalf("first upload chunks = %d, want multiple", first)
	}

	shortPath := writeTempFile(t, "notes.txt", "a one line revision")
	second, err := p.Process(context.Background(), "doc-9", "notes.txt", shortPath)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if second != 1 {
		t.Fatalf("second upload chunks = %d, want 1", second)
	}

	// The shorter revision fully replaces the earlier chunk set.
	remaining := 0
	for _, pt := range writer.points {
		if pt.Payload.DocID == "doc-9" {
			remaining++
		}
	}
	if remaining != second {
		t.Errorf("index holds %d chunks for doc-9 after re-upload, want %d", remaining, second)
	}

	if len(writer.deletes) != 2 || writer.deletes[1].DocID != "doc-9" {
		t.Errorf("deletes = %+v, want doc_id filter per upload", writer.deletes)
	}
}

func TestProcessorEmbedFailure(t *testing.T) {
	svc := &fakeInference{embedErr: errors.New(errors.CodeUnavailable, "inference down")}
	p := NewProcessor(NewChunker(DefaultChunkerConfig()), svc, &fakeWriter{}, "documents", nil)

	path := writeTempFile(t, "doc.txt", "some content")

	_, err := p.Process(context.Background(), "doc-3", "doc.txt", path)
	if err == nil {
		t.Fatal("Process() error = nil, want ingest error")
	}
	if !errors.IsCode(err, errors.CodeIngestError) {
		t.Errorf("error code = %v, want INGEST_ERROR", err)
	}
}

func TestProcessorUpsertFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New(errors.CodeQdrantError, "upsert failed")}
	p := NewProcessor(NewChunker(DefaultChunkerConfig()), &fakeInference{}, writer, "documents", nil)

	path := writeTempFile(t, "doc.txt", "some content")

	_, err := p.Process(context.Background(), "doc-4", "doc.txt", path)
	if !errors.IsCode(err, errors.CodeQdrantError) {
		t.Errorf("error = %v, want QDRANT_ERROR", err)
	}
}

func TestProcessorEmptyDocument(t *testing.T) {
	p := NewProcessor(NewChunker(DefaultChunkerConfig()), &fakeInference{}, &fakeWriter{}, "documents", nil)

	path := writeTempFile(t, "empty.txt", "   \n ")

	_, err := p.Process(context.Background(), "doc-5", "empty.txt", path)
	if !errors.IsCode(err, errors.CodeIngestError) {
		t.Errorf("error = %v, want INGEST_ERROR", err)
	}
}

func TestDocIDForStable(t *testing.T) {
	a := DocIDFor("report.pdf")
	b := DocIDFor("report.pdf")
	c := DocIDFor("other.pdf")

	if a != b {
		t.Error("DocIDFor() not deterministic")
	}
	if a == c {
		t.Error("DocIDFor() collides for different filenames")
	}
	if len(a) != 16 {
		t.Errorf("DocIDFor() length = %d, want 16", len(a))
	}
}

func TestChunkPointIDFormat(t *testing.T) {
	id := chunkPointID("doc-1", 3)
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("chunkPointID() = %q, want UUID shape", id)
	}
	want := []int{8, 4, 4, 4, 12}
	for i, part := range parts {
		if len(part) != want[i] {
			t.Errorf("segment %d length = %d, want %d", i, len(part), want[i])
		}
	}
}
