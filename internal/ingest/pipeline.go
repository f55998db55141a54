package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/rezkaaufar/hybrid-search-service/internal/chunk"
	"github.com/rezkaaufar/hybrid-search-service/internal/embed"
	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// PipelineConfig controls chunking and concurrency for a run.
type PipelineConfig struct {
	ChunkSize    int
	ChunkOverlap int

	// Workers bounds concurrent source processing. Default is half the
	// CPU count, minimum 1.
	Workers int

	// Dimensions is the configured embedding width; a provider that
	// returns a different width is logged, not rejected.
	Dimensions int

	// VectorIndexPath is where the similarity index is persisted after
	// the run. Empty skips persistence.
	VectorIndexPath string
}

// Summary reports what a run accomplished.
type Summary struct {
	RunID         string
	Documents     int64
	Chunks        int64
	SourcesFailed int64
	Elapsed       time.Duration
}

// Pipeline ingests source streams into the document store and both
// search indexes. Safe to re-run on unchanged sources: documents are
// upserted by source id and their chunk sets fully replaced.
type Pipeline struct {
	docs     *store.DocumentStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	chunker  *chunk.Chunker
	config   PipelineConfig

	dimWarned atomic.Bool
}

func NewPipeline(
	docs *store.DocumentStore,
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	embedder embed.Embedder,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU() / 2
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}
	return &Pipeline{
		docs:     docs,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		chunker: chunk.NewWithOptions(chunk.Options{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
		}),
		config: cfg,
	}
}

// Run processes every source concurrently. One source's failure is
// logged and skipped; the run only fails when a source reports missing
// data outright or the final index persistence fails.
func (p *Pipeline) Run(ctx context.Context, sources []Source) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString()}

	slog.Info("ingest_run_started",
		slog.String("run_id", summary.RunID),
		slog.Int("sources", len(sources)),
		slog.Int("workers", p.config.Workers),
		slog.String("embed_model", p.embedder.ModelName()))

	pool, err := ants.NewPool(p.config.Workers)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIngestFailed, err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)
	for _, src := range sources {
		src := src
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if err := p.runSource(ctx, src, summary); err != nil {
				atomic.AddInt64(&summary.SourcesFailed, 1)
				if errors.IsFatal(err) {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
					}
					fatalMu.Unlock()
					return
				}
				slog.Warn("source_skipped",
					slog.String("run_id", summary.RunID),
					slog.String("source", src.Name()),
					slog.String("error", err.Error()))
			}
		})
		if submitErr != nil {
			wg.Done()
			return nil, errors.Wrap(errors.ErrCodeIngestFailed, submitErr)
		}
	}
	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.config.VectorIndexPath != "" {
		if err := p.vector.Save(p.config.VectorIndexPath); err != nil {
			return nil, errors.Wrap(errors.ErrCodeIngestFailed, err)
		}
	}

	summary.Elapsed = time.Since(start)
	slog.Info("ingest_run_complete",
		slog.String("run_id", summary.RunID),
		slog.Int64("documents", summary.Documents),
		slog.Int64("chunks", summary.Chunks),
		slog.Int64("sources_failed", summary.SourcesFailed),
		slog.Duration("elapsed", summary.Elapsed))

	return summary, nil
}

func (p *Pipeline) runSource(ctx context.Context, src Source, summary *Summary) error {
	return src.Stream(ctx, func(rec *Record) error {
		inserted, err := p.processRecord(ctx, rec)
		if err != nil {
			// One bad record does not sink the source.
			slog.Warn("record_skipped",
				slog.String("source", src.Name()),
				slog.String("source_id", rec.SourceID),
				slog.String("error", err.Error()))
			return nil
		}
		atomic.AddInt64(&summary.Documents, 1)
		atomic.AddInt64(&summary.Chunks, int64(inserted))
		return nil
	})
}

// processRecord upserts the document, replaces its chunk set, and
// refreshes both indexes. Returns the number of chunks inserted.
func (p *Pipeline) processRecord(ctx context.Context, rec *Record) (int, error) {
	checksum := contentChecksum(rec.Text)

	docID, err := p.docs.UpsertDocument(ctx, rec.SourceID, rec.Title, rec.URL, checksum)
	if err != nil {
		return 0, fmt.Errorf("upsert document: %w", err)
	}

	removed, err := p.docs.DeleteChunksByDocument(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("delete stale chunks: %w", err)
	}
	if len(removed) > 0 {
		if err := p.lexical.Delete(ctx, removed); err != nil {
			return 0, fmt.Errorf("purge lexical entries: %w", err)
		}
		if err := p.vector.Delete(ctx, removed); err != nil {
			return 0, fmt.Errorf("purge vectors: %w", err)
		}
	}

	pieces := p.chunker.Chunk(rec.Text)
	if len(pieces) == 0 {
		return 0, nil
	}

	contents := make([]string, len(pieces))
	for i, piece := range pieces {
		contents[i] = piece.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	p.checkDimensions(vectors)

	chunks := make([]*store.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = &store.Chunk{
			Content:    piece.Content,
			TokenCount: piece.TokenCount,
			Embedding:  vectors[i],
		}
	}
	if err := p.docs.InsertChunks(ctx, docID, chunks); err != nil {
		return 0, fmt.Errorf("insert chunks: %w", err)
	}

	entries := make([]*store.LexicalEntry, len(chunks))
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		entries[i] = &store.LexicalEntry{ChunkID: c.ID, Content: c.Content}
		ids[i] = c.ID
	}
	if err := p.lexical.Index(ctx, entries); err != nil {
		return 0, fmt.Errorf("index lexical entries: %w", err)
	}
	if err := p.vector.Add(ctx, ids, vectors); err != nil {
		return 0, fmt.Errorf("add vectors: %w", err)
	}

	return len(chunks), nil
}

// checkDimensions warns once per run when the provider width differs
// from the configured width.
func (p *Pipeline) checkDimensions(vectors [][]float32) {
	if p.config.Dimensions <= 0 || len(vectors) == 0 {
		return
	}
	if got := len(vectors[0]); got != p.config.Dimensions {
		if p.dimWarned.CompareAndSwap(false, true) {
			slog.Warn("embedding_dimension_mismatch",
				slog.Int("configured", p.config.Dimensions),
				slog.Int("actual", got))
		}
	}
}

// RebuildVectorIndex repopulates an empty similarity index from the
// embeddings already persisted in chunk rows, in batches.
func RebuildVectorIndex(ctx context.Context, docs *store.DocumentStore, vector store.VectorIndex) (int, error) {
	const batchSize = 512

	var (
		ids     []int64
		vecs    [][]float32
		total   int
		flushFn = func() error {
			if len(ids) == 0 {
				return nil
			}
			if err := vector.Add(ctx, ids, vecs); err != nil {
				return err
			}
			total += len(ids)
			ids = ids[:0]
			vecs = vecs[:0]
			return nil
		}
	)

	err := docs.AllEmbeddings(ctx, func(chunkID int64, v []float32) error {
		ids = append(ids, chunkID)
		vecs = append(vecs, v)
		if len(ids) >= batchSize {
			return flushFn()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flushFn(); err != nil {
		return total, err
	}
	return total, nil
}

func contentChecksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
