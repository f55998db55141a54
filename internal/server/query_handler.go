package server

import (
	"net/http"

	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
	"github.com/rezkaaufar/hybrid-search-service/internal/search"
)

type queryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k" validate:"gte=0"`
	Mode  string `json:"mode"`
}

type queryResponse struct {
	Mode    search.Mode      `json:"mode"`
	Results []*search.Result `json:"results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := s.decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	mode, err := search.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, err.Error(), err))
		return
	}

	k := req.K
	if k <= 0 {
		k = s.deps.Config.Search.DefaultK
	}

	results, err := s.deps.Executor.Search(r.Context(), req.Query, k, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []*search.Result{}
	}

	writeJSON(w, http.StatusOK, queryResponse{Mode: mode, Results: results})
}
