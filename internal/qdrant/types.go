// Package qdrant provides a wrapper around the Qdrant Go client
// with simplified APIs for document retrieval operations.
package qdrant

import (
	"time"
)

// CollectionConfig defines the configuration for creating a Qdrant collection.
type CollectionConfig struct {
	// Name is the collection name (will be prefixed with "rag_").
	Name string

	// DenseVectorSize is the dimension of dense vectors.
	DenseVectorSize uint64

	// OnDiskPayload stores payload on disk to save RAM.
	OnDiskPayload bool

	// IndexingThreshold is the number of vectors before HNSW index is built.
	IndexingThreshold uint64

	// MemmapThreshold is the number of vectors before memory-mapping is used.
	MemmapThreshold uint64
}

// DefaultCollectionConfig returns sensible defaults for a document collection.
func DefaultCollectionConfig(name string) CollectionConfig {
	return CollectionConfig{
		Name:              name,
		DenseVectorSize:   1536,
		OnDiskPayload:     true,
		IndexingThreshold: 20000,
		MemmapThreshold:   50000,
	}
}

// Point represents a point to upsert into Qdrant.
type Point struct {
	// ID is the unique point identifier.
	ID string

	// DenseVector is the semantic embedding vector.
	DenseVector []float32

	// SparseIndices are the token IDs for sparse vector.
	SparseIndices []uint32

	// SparseValues are the token weights for sparse vector.
	SparseValues []float32

	// Payload is the metadata associated with this point.
	Payload PointPayload
}

// PointPayload contains the searchable metadata for a document chunk.
type PointPayload struct {
	DocID      string    `json:"doc_id"`
	Source     string    `json:"source"`
	Content    string    `json:"content"`
	ChunkIndex int       `json:"chunk_index"`
	IngestedAt time.Time `json:"ingested_at"`
}

// SearchRequest defines parameters for a vector search.
type SearchRequest struct {
	// DenseVector for dense vector search.
	DenseVector []float32

	// SparseIndices for sparse vector search.
	SparseIndices []uint32

	// SparseValues for sparse vector search.
	SparseValues []float32

	// Limit is the maximum number of results to return.
	Limit uint64

	// Filter constrains the search to matching documents.
	Filter *SearchFilter

	// WithPayload includes payload in results.
	WithPayload bool

	// ScoreThreshold filters results below this score.
	ScoreThreshold *float32
}

// SearchFilter defines filter conditions for search.
type SearchFilter struct {
	// Source filters by originating document source.
	Source string

	// DocID filters by document ID.
	DocID string
}

// SearchResult represents a single search result.
type SearchResult struct {
	// ID is the point identifier.
	ID string

	// Score is the relevance score.
	Score float32

	// Payload contains the point metadata.
	Payload PointPayload
}

// DeleteFilter defines conditions for deleting points.
type DeleteFilter struct {
	// IDs deletes specific point IDs.
	IDs []string

	// Source deletes all points from this document source.
	Source string

	// DocID deletes all points with this document ID.
	DocID string
}

// CollectionInfo contains information about a collection.
type CollectionInfo struct {
	// Name is the collection name (without prefix).
	Name string

	// PointsCount is the total number of points.
	PointsCount uint64

	// Status is the collection health status.
	Status string

	// SegmentsCount is the number of segments.
	SegmentsCount uint64
}
