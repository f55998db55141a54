// Package store is the persistence layer: documents and chunks in SQLite,
// a full-text lexical index (SQLite FTS5 or Bleve), and an HNSW vector index.
package store

import (
	"context"
	"fmt"
	"time"
)

// Document is a persisted source item. Re-ingesting the same source_id
// updates metadata and checksum but keeps the same identity.
type Document struct {
	ID        int64
	SourceID  string
	Title     string
	URL       string
	Checksum  string
	CreatedAt time.Time
}

// Chunk is a persisted passage of a document: the unit of embedding and
// retrieval. SourceTitle and SourceURL are joined from the owning document
// when chunks are fetched for enrichment.
type Chunk struct {
	ID          int64
	DocumentID  int64
	ChunkIndex  int
	Content     string
	TokenCount  int
	Embedding   []float32
	CreatedAt   time.Time
	SourceTitle string
	SourceURL   string
}

// LexicalEntry is a chunk's content submitted to the lexical index.
type LexicalEntry struct {
	ChunkID int64
	Content string
}

// LexicalResult is a single full-text search hit.
// Score is higher-is-better relevance.
type LexicalResult struct {
	ChunkID int64
	Score   float64
}

// LexicalIndex provides keyword search over chunk content.
type LexicalIndex interface {
	// Index adds entries to the index. An existing chunk ID is replaced.
	Index(ctx context.Context, entries []*LexicalEntry) error

	// Search returns chunks matching query ordered by relevance descending.
	Search(ctx context.Context, query string, limit int) ([]*LexicalResult, error)

	// Delete removes entries by chunk ID.
	Delete(ctx context.Context, chunkIDs []int64) error

	// Close releases resources.
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
// Distance is lower-is-better; Score is normalized similarity (0-1).
type VectorResult struct {
	ChunkID  int64
	Distance float32
	Score    float32
}

// VectorIndexConfig configures the vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding width. Must match the embedding provider.
	Dimensions int

	// Metric is the distance metric: "cos" (default) or "l2".
	Metric string

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int
}

// VectorIndex provides approximate nearest-neighbor search over chunk
// embeddings.
type VectorIndex interface {
	// Add inserts vectors keyed by chunk ID. An existing ID is replaced.
	Add(ctx context.Context, chunkIDs []int64, vectors [][]float32) error

	// Search finds the k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, chunkIDs []int64) error

	// Count returns the number of live vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector with the wrong width for the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
