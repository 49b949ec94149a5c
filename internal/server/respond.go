package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/pricing"
	"github.com/pestline/pestline/internal/quote"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 256 << 10

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorBody{
		Error:     code,
		Message:   msg,
		Status:    status,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeDomainError maps recalculation and store errors onto statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, quote.ErrStaleQuote):
		writeError(w, r, http.StatusConflict, "stale_quote", "quote was modified concurrently, retry the request")
	case errors.Is(err, pricing.ErrInvalidSizeRange):
		writeError(w, r, http.StatusBadRequest, "invalid_size_range", err.Error())
	default:
		s.log.Error("server: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return false
	}
	return true
}
