package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
)

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /rerank", s.handleRerank)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// handleHealth reports liveness unconditionally; it must not depend on
// model warm-up or index state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("response_encode_failed", slog.String("error", err.Error()))
	}
}

// writeError maps err to a status. Server-side failures get a generic
// message; the full error goes to the log only.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()))
		message = "internal server error"
	}

	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// decodeBody decodes JSON and runs struct validation.
func (s *Server) decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, "malformed JSON body", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return errors.New(errors.ErrCodeInvalidInput, err.Error(), err)
	}
	return nil
}
