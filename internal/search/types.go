// Package search runs queries against the lexical and vector indexes and
// fuses the two ranked lists with Reciprocal Rank Fusion.
package search

import "fmt"

// Mode selects which searchers a query exercises.
type Mode string

const (
	// ModeLexical uses only the full-text index.
	ModeLexical Mode = "lexical"

	// ModeSemantic embeds the query and uses only the vector index.
	ModeSemantic Mode = "semantic"

	// ModeHybrid runs both searchers concurrently and fuses the lists.
	ModeHybrid Mode = "hybrid"
)

// ParseMode validates a mode string; empty defaults to hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLexical, ModeSemantic, ModeHybrid:
		return Mode(s), nil
	case "":
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("unknown search mode: %q (valid options: lexical, semantic, hybrid)", s)
	}
}

// Result is a single ranked search hit, enriched with chunk content and
// document provenance.
type Result struct {
	Rank        int     `json:"rank"`
	ChunkID     int64   `json:"chunk_id"`
	DocumentID  int64   `json:"document_id"`
	Content     string  `json:"content"`
	Score       float64 `json:"score"`
	SourceTitle string  `json:"source_title,omitempty"`
	SourceURL   string  `json:"source_url,omitempty"`
}

// DefaultK is the result count used when the caller does not specify one.
const DefaultK = 5
