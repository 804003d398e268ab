package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"time"

	"github.com/docuchat/rag-server/internal/inference"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
	"github.com/docuchat/rag-server/internal/qdrant"
)

const upsertBatchSize = 100

// PointWriter is the subset of the vector store used for ingestion.
type PointWriter interface {
	UpsertPointsBatch(ctx context.Context, collection string, points []qdrant.Point, batchSize int) error
	DeletePoints(ctx context.Context, collection string, filter qdrant.DeleteFilter) error
}

// Processor turns an uploaded file into indexed vector store points.
type Processor struct {
	chunker    *Chunker
	inference  inference.Service
	writer     PointWriter
	collection string
	log        *logger.Logger
}

// NewProcessor creates an ingest processor.
func NewProcessor(chunker *Chunker, svc inference.Service, writer PointWriter, collection string, log *logger.Logger) *Processor {
	if log == nil {
		log = logger.Default()
	}
	return &Processor{
		chunker:    chunker,
		inference:  svc,
		writer:     writer,
		collection: collection,
		log:        log,
	}
}

// Process extracts, chunks, encodes and indexes one uploaded file.
// Returns the number of chunks created.
func (p *Processor) Process(ctx context.Context, docID, source, path string) (int, error) {
	text, err := ExtractText(path)
	if err != nil {
		return 0, err
	}

	chunks := p.chunker.Chunk(text, filepath.Ext(path))
	if len(chunks) == 0 {
		return 0, errors.New(errors.CodeIngestError, "document produced no chunks")
	}

	p.log.Debug("document chunked", "doc_id", docID, "chunks", len(chunks))

	dense, err := p.inference.Embed(ctx, chunks)
	if err != nil {
		return 0, errors.Wrap(errors.CodeIngestError, "failed to embed chunks", err)
	}
	if len(dense) != len(chunks) {
		return 0, errors.New(errors.CodeIngestError, "embedding count does not match chunk count")
	}

	sparse, err := p.inference.SparseEncode(ctx, chunks)
	if err != nil {
		return 0, errors.Wrap(errors.CodeIngestError, "failed to sparse encode chunks", err)
	}
	if len(sparse) != len(chunks) {
		return 0, errors.New(errors.CodeIngestError, "sparse vector count does not match chunk count")
	}

	now := time.Now().UTC()
	points := make([]qdrant.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = qdrant.Point{
			ID:            chunkPointID(docID, i),
			DenseVector:   dense[i],
			SparseIndices: sparse[i].Indices,
			SparseValues:  sparse[i].Values,
			Payload: qdrant.PointPayload{
				DocID:      docID,
				Source:     source,
				Content:    chunk,
				ChunkIndex: i,
				IngestedAt: now,
			},
		}
	}

	// A re-uploaded revision may have fewer chunks than the last one,
	// so stale points must go before the new set lands.
	if err := p.writer.DeletePoints(ctx, p.collection, qdrant.DeleteFilter{DocID: docID}); err != nil {
		return 0, errors.Wrap(errors.CodeQdrantError, "failed to delete previous chunks", err)
	}

	if err := p.writer.UpsertPointsBatch(ctx, p.collection, points, upsertBatchSize); err != nil {
		return 0, errors.Wrap(errors.CodeQdrantError, "failed to upsert chunks", err)
	}

	return len(chunks), nil
}

// DocIDFor derives a stable document ID from the uploaded filename, so
// re-uploading the same file replaces its chunks.
func DocIDFor(filename string) string {
	sum := sha256.Sum256([]byte(filename))
	return fmt.Sprintf("%x", sum)[:16]
}

// chunkPointID derives a deterministic UUID for a chunk from its
// document ID and position.
func chunkPointID(docID string, chunkIndex int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", docID, chunkIndex)))
	h := fmt.Sprintf("%x", sum)
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[0:8], h[8:12], h[12:16], h[16:20], h[20:32])
}
