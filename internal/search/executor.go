package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rezkaaufar/hybrid-search-service/internal/embed"
	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// DefaultEmbedConcurrency bounds concurrent query-embedding calls so a burst
// of semantic queries cannot saturate the embedding provider.
const DefaultEmbedConcurrency = 4

// ExecutorConfig tunes the query executor.
type ExecutorConfig struct {
	// RRFConstant is the fusion smoothing parameter (default: 60).
	RRFConstant int

	// EmbedConcurrency bounds concurrent query embeddings (default: 4).
	EmbedConcurrency int64
}

// Executor orchestrates lexical and semantic searches and fuses their
// results. The two branches of a hybrid query run concurrently; the
// semantic branch waits on the query embedding, the lexical branch does
// not.
type Executor struct {
	lexical   store.LexicalIndex
	vector    store.VectorIndex
	embedder  embed.Embedder
	docs      *store.DocumentStore
	fusion    *RRFFusion
	embedGate *semaphore.Weighted
}

// NewExecutor wires an executor over the given indexes and stores.
func NewExecutor(
	lexical store.LexicalIndex,
	vector store.VectorIndex,
	embedder embed.Embedder,
	docs *store.DocumentStore,
	cfg ExecutorConfig,
) *Executor {
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = DefaultEmbedConcurrency
	}
	return &Executor{
		lexical:   lexical,
		vector:    vector,
		embedder:  embedder,
		docs:      docs,
		fusion:    NewRRFFusion(cfg.RRFConstant),
		embedGate: semaphore.NewWeighted(cfg.EmbedConcurrency),
	}
}

// Search returns up to k ranked results for the query in the given mode.
func (e *Executor) Search(ctx context.Context, query string, k int, mode Mode) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if k <= 0 {
		k = DefaultK
	}

	switch mode {
	case ModeLexical:
		return e.lexicalSearch(ctx, query, k)
	case ModeSemantic:
		return e.semanticSearch(ctx, query, k)
	case ModeHybrid, "":
		return e.hybridSearch(ctx, query, k)
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown search mode: %q", mode), nil)
	}
}

// lexicalSearch returns full-text hits ordered by native relevance.
func (e *Executor) lexicalSearch(ctx context.Context, query string, k int) ([]*Result, error) {
	hits, err := e.lexical.Search(ctx, query, k)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	fused := make([]*FusedCandidate, len(hits))
	for i, h := range hits {
		fused[i] = &FusedCandidate{
			ChunkID:      h.ChunkID,
			Score:        h.Score,
			LexicalRank:  i + 1,
			LexicalScore: h.Score,
		}
	}
	return e.enrich(ctx, fused, k)
}

// semanticSearch embeds the query once and returns nearest neighbors, most
// similar first.
func (e *Executor) semanticSearch(ctx context.Context, query string, k int) ([]*Result, error) {
	vec, err := e.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := e.vector.Search(ctx, vec, k)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	fused := make([]*FusedCandidate, len(hits))
	for i, h := range hits {
		fused[i] = &FusedCandidate{
			ChunkID:       h.ChunkID,
			Score:         float64(h.Score),
			SemanticRank:  i + 1,
			SemanticScore: float64(h.Score),
		}
	}
	return e.enrich(ctx, fused, k)
}

// hybridSearch runs both branches concurrently and fuses the lists with
// RRF. A single failed branch degrades to the other's results; only both
// failing is an error.
func (e *Executor) hybridSearch(ctx context.Context, query string, k int) ([]*Result, error) {
	lexResults, vecResults, err := e.parallelSearch(ctx, query, k*2)
	if err != nil {
		if lexResults == nil && vecResults == nil {
			return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
		}
		slog.Warn("hybrid_branch_degraded", slog.String("error", err.Error()))
	}

	fused := e.fusion.Fuse(lexResults, vecResults)
	return e.enrich(ctx, fused, k)
}

// parallelSearch executes the lexical and semantic branches concurrently.
// Returns partial results on single-branch failure.
func (e *Executor) parallelSearch(ctx context.Context, query string, limit int) (
	lexResults []*store.LexicalResult,
	vecResults []*store.VectorResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	var lexErr, vecErr error

	g.Go(func() error {
		var searchErr error
		lexResults, searchErr = e.lexical.Search(gctx, query, limit)
		if searchErr != nil {
			// Keep the other branch running.
			lexErr = searchErr
		}
		return nil
	})

	g.Go(func() error {
		embedding, embedErr := e.embedQuery(gctx, query)
		if embedErr != nil {
			vecErr = embedErr
			return nil
		}

		var searchErr error
		vecResults, searchErr = e.vector.Search(gctx, embedding, limit)
		if searchErr != nil {
			vecErr = searchErr
		}
		return nil
	})

	if waitErr := g.Wait(); waitErr != nil {
		// Context was cancelled.
		return nil, nil, waitErr
	}

	if lexErr != nil && vecErr != nil {
		return nil, nil, stderrors.Join(lexErr, vecErr)
	}
	if lexErr != nil {
		err = lexErr
	} else if vecErr != nil {
		err = vecErr
	}

	return lexResults, vecResults, err
}

// embedQuery embeds the query under the embedding admission gate.
func (e *Executor) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if err := e.embedGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.embedGate.Release(1)

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	return vec, nil
}

// enrich resolves fused candidates to full chunk rows with document
// provenance, preserving candidate order, and assigns dense 1-based ranks
// over the surviving top k.
func (e *Executor) enrich(ctx context.Context, candidates []*FusedCandidate, k int) ([]*Result, error) {
	if len(candidates) == 0 {
		return []*Result{}, nil
	}

	ids := make([]int64, len(candidates))
	scores := make(map[int64]float64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ChunkID
		scores[c.ChunkID] = c.Score
	}

	chunks, err := e.docs.GetChunks(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	results := make([]*Result, 0, min(len(chunks), k))
	for _, c := range chunks {
		if len(results) >= k {
			break
		}
		results = append(results, &Result{
			Rank:        len(results) + 1,
			ChunkID:     c.ID,
			DocumentID:  c.DocumentID,
			Content:     c.Content,
			Score:       scores[c.ID],
			SourceTitle: c.SourceTitle,
			SourceURL:   c.SourceURL,
		})
	}

	return results, nil
}
