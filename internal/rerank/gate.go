package rerank

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
)

const (
	// DefaultPermits bounds concurrent scoring calls.
	DefaultPermits = 2

	// DefaultMaxDocuments caps the batch size of a single request.
	DefaultMaxDocuments = 100
)

// Document is one rerank candidate. ChunkID and DocumentID are optional
// pass-through identifiers for callers that rerank search results.
type Document struct {
	ChunkID     int64
	DocumentID  int64
	Content     string
	Score       float64
	SourceTitle string
	SourceURL   string
}

// RankedDocument is a Document after scoring. Rank is 1-based in the
// reordered list; Index is the document's position in the request.
type RankedDocument struct {
	Document
	Rank          int
	Index         int
	RerankerScore float64
}

// Response carries the reordered documents plus request accounting.
type Response struct {
	Results       []*RankedDocument
	RerankedCount int
	ReturnedCount int
	LatencyMs     float64
}

// GateConfig configures the admission gate.
type GateConfig struct {
	Permits      int64
	MaxDocuments int
}

// Gate wraps a Scorer with bounded admission. At most Permits scoring
// calls run concurrently; excess requests queue on the semaphore rather
// than being rejected, and a queued caller can still cancel via ctx.
type Gate struct {
	scorer  Scorer
	sem     *semaphore.Weighted
	maxDocs int
}

func NewGate(scorer Scorer, cfg GateConfig) *Gate {
	if cfg.Permits <= 0 {
		cfg.Permits = DefaultPermits
	}
	if cfg.MaxDocuments <= 0 {
		cfg.MaxDocuments = DefaultMaxDocuments
	}
	return &Gate{
		scorer:  scorer,
		sem:     semaphore.NewWeighted(cfg.Permits),
		maxDocs: cfg.MaxDocuments,
	}
}

// Warm primes the scorer once before traffic. A warm-up failure is
// logged and the gate stays usable; the first real request retries the
// model implicitly.
func (g *Gate) Warm(ctx context.Context) {
	if err := g.scorer.Warm(ctx); err != nil {
		slog.Warn("scorer_warmup_failed_continuing_degraded",
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("scorer_warmed")
}

// Rerank scores the documents against the query, sorts descending by
// score with original order breaking ties, and truncates to topK
// (topK <= 0 means all).
func (g *Gate) Rerank(ctx context.Context, query string, docs []*Document, topK int) (*Response, error) {
	start := time.Now()

	if len(docs) > g.maxDocs {
		return nil, errors.New(errors.ErrCodeTooManyDocuments,
			"too many documents in rerank request", nil).
			WithDetail("count", strconv.Itoa(len(docs))).
			WithDetail("max", strconv.Itoa(g.maxDocs))
	}
	if len(docs) == 0 {
		return &Response{Results: []*RankedDocument{}}, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	scores, err := g.score(ctx, query, docs)
	if err != nil {
		return nil, err
	}

	ranked := make([]*RankedDocument, len(docs))
	for i, d := range docs {
		ranked[i] = &RankedDocument{Document: *d, Index: i, RerankerScore: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankerScore > ranked[j].RerankerScore
	})

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	for i, r := range ranked {
		r.Rank = i + 1
	}

	latency := math.Round(float64(time.Since(start).Nanoseconds())/1e4) / 100

	return &Response{
		Results:       ranked,
		RerankedCount: len(docs),
		ReturnedCount: len(ranked),
		LatencyMs:     latency,
	}, nil
}

// score runs the CPU-bound scoring call on its own goroutine so a
// caller that abandons the request is released immediately; the permit
// is still held until the scorer returns.
func (g *Gate) score(ctx context.Context, query string, docs []*Document) ([]float64, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	type scoreResult struct {
		scores []float64
		err    error
	}
	done := make(chan scoreResult, 1)
	go func() {
		scores, err := g.scorer.Score(ctx, query, texts)
		done <- scoreResult{scores, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, errors.Wrap(errors.ErrCodeScoringFailed, res.err)
		}
		if len(res.scores) != len(docs) {
			return nil, errors.New(errors.ErrCodeScoringFailed,
				"scorer returned wrong score count", nil).
				WithDetail("expected", strconv.Itoa(len(docs))).
				WithDetail("got", strconv.Itoa(len(res.scores)))
		}
		return res.scores, nil
	}
}

// Close releases the underlying scorer.
func (g *Gate) Close() error {
	return g.scorer.Close()
}
