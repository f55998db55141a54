package rerank

import (
	"context"
	"regexp"
	"strings"
)

// Scorer assigns a relevance score to each document for a query. Scores
// are returned in input order; higher means more relevant.
type Scorer interface {
	// Score returns one score per document, aligned with the input slice.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)

	// Warm performs a one-time priming call so the first real request
	// does not pay model-load latency.
	Warm(ctx context.Context) error

	// Available reports whether the scorer can serve requests.
	Available(ctx context.Context) bool

	// Close releases scorer resources.
	Close() error
}

var lexicalTokenRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// LexicalScorer is a deterministic term-overlap scorer used when no
// cross-encoder sidecar is configured. It needs no model and no network,
// which also makes it the scorer of choice in tests.
type LexicalScorer struct{}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

var _ Scorer = (*LexicalScorer)(nil)

// Score computes, per document, the fraction of distinct query terms
// present in the document. An empty query scores every document 0.
func (s *LexicalScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	queryTerms := termSet(query)
	scores := make([]float64, len(documents))
	if len(queryTerms) == 0 {
		return scores, nil
	}

	for i, doc := range documents {
		docTerms := termSet(doc)
		matched := 0
		for term := range queryTerms {
			if _, ok := docTerms[term]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(queryTerms))
	}
	return scores, nil
}

func (s *LexicalScorer) Warm(context.Context) error { return nil }

func (s *LexicalScorer) Available(context.Context) bool { return true }

func (s *LexicalScorer) Close() error { return nil }

func termSet(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, tok := range lexicalTokenRe.FindAllString(strings.ToLower(text), -1) {
		terms[tok] = struct{}{}
	}
	return terms
}
