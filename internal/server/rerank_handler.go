package server

import (
	"net/http"

	"github.com/rezkaaufar/hybrid-search-service/internal/rerank"
)

type rerankDocument struct {
	ChunkID     *int64   `json:"chunk_id,omitempty"`
	DocumentID  *int64   `json:"document_id,omitempty"`
	Content     string   `json:"content" validate:"required"`
	Score       *float64 `json:"score,omitempty"`
	SourceTitle string   `json:"source_title,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
}

type rerankRequest struct {
	Query     string           `json:"query" validate:"required"`
	Documents []rerankDocument `json:"documents" validate:"required,min=1,dive"`
	TopK      int              `json:"top_k" validate:"gte=0"`
}

type rerankedItem struct {
	Rank          int      `json:"rank"`
	ChunkID       *int64   `json:"chunk_id,omitempty"`
	DocumentID    *int64   `json:"document_id,omitempty"`
	Content       string   `json:"content"`
	RerankerScore float64  `json:"reranker_score"`
	OriginalScore *float64 `json:"original_score,omitempty"`
	SourceTitle   string   `json:"source_title,omitempty"`
	SourceURL     string   `json:"source_url,omitempty"`
}

type rerankResponse struct {
	Query         string         `json:"query"`
	Results       []rerankedItem `json:"results"`
	RerankedCount int            `json:"reranked_count"`
	ReturnedCount int            `json:"returned_count"`
	LatencyMs     float64        `json:"latency_ms"`
}

func (s *Server) handleRerank(w http.ResponseWriter, r *http.Request) {
	var req rerankRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	docs := make([]*rerank.Document, len(req.Documents))
	for i, d := range req.Documents {
		doc := &rerank.Document{
			Content:     d.Content,
			SourceTitle: d.SourceTitle,
			SourceURL:   d.SourceURL,
		}
		if d.ChunkID != nil {
			doc.ChunkID = *d.ChunkID
		}
		if d.DocumentID != nil {
			doc.DocumentID = *d.DocumentID
		}
		if d.Score != nil {
			doc.Score = *d.Score
		}
		docs[i] = doc
	}

	resp, err := s.deps.Gate.Rerank(r.Context(), req.Query, docs, req.TopK)
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]rerankedItem, len(resp.Results))
	for i, ranked := range resp.Results {
		// Optional identifiers round-trip only when the caller sent them.
		orig := req.Documents[ranked.Index]
		items[i] = rerankedItem{
			Rank:          ranked.Rank,
			ChunkID:       orig.ChunkID,
			DocumentID:    orig.DocumentID,
			Content:       ranked.Content,
			RerankerScore: ranked.RerankerScore,
			OriginalScore: orig.Score,
			SourceTitle:   ranked.SourceTitle,
			SourceURL:     ranked.SourceURL,
		}
	}

	writeJSON(w, http.StatusOK, rerankResponse{
		Query:         req.Query,
		Results:       items,
		RerankedCount: resp.RerankedCount,
		ReturnedCount: resp.ReturnedCount,
		LatencyMs:     resp.LatencyMs,
	})
}
