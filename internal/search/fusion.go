package search

import (
	"sort"

	"github.com/rezkaaufar/hybrid-search-service/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is
// empirically validated across domains (used by Azure AI Search, OpenSearch,
// etc.); lower values sharpen the preference for top ranks.
const DefaultRRFConstant = 60

// FusedCandidate is a single candidate after RRF fusion. Per-list ranks are
// 1-indexed; 0 means the candidate was absent from that list.
type FusedCandidate struct {
	ChunkID       int64
	Score         float64
	LexicalRank   int
	LexicalScore  float64
	SemanticRank  int
	SemanticScore float64
}

// RRFFusion merges a lexical and a semantic candidate list with Reciprocal
// Rank Fusion:
//
//	score(d) = Σ 1 / (k + rank_i)
//
// over the lists d appears in. A candidate in both lists sums both
// contributions; a candidate in one list receives only that one. Rank-based
// fusion needs no score normalization, which keeps the merge robust to
// scale drift in either searcher.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance; k <= 0 falls back to the default.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines the two candidate lists. The output is ordered by fused
// score descending; ties keep first-seen order (the lexical list is
// consumed before the semantic list), so repeated calls on the same inputs
// are deterministic.
func (f *RRFFusion) Fuse(lexical []*store.LexicalResult, semantic []*store.VectorResult) []*FusedCandidate {
	if len(lexical) == 0 && len(semantic) == 0 {
		return []*FusedCandidate{}
	}

	// candidates holds first-seen order; the stable sort preserves it for
	// equal scores.
	candidates := make([]*FusedCandidate, 0, len(lexical)+len(semantic))
	byID := make(map[int64]*FusedCandidate, len(lexical)+len(semantic))

	getOrCreate := func(chunkID int64) *FusedCandidate {
		if c, ok := byID[chunkID]; ok {
			return c
		}
		c := &FusedCandidate{ChunkID: chunkID}
		byID[chunkID] = c
		candidates = append(candidates, c)
		return c
	}

	for rank, r := range lexical {
		c := getOrCreate(r.ChunkID)
		c.LexicalRank = rank + 1
		c.LexicalScore = r.Score
		c.Score += 1.0 / float64(f.K+rank+1)
	}

	for rank, r := range semantic {
		c := getOrCreate(r.ChunkID)
		c.SemanticRank = rank + 1
		c.SemanticScore = float64(r.Score)
		c.Score += 1.0 / float64(f.K+rank+1)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}
