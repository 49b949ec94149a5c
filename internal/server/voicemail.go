package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/voicemail"
	"github.com/pestline/pestline/pkg/slybroadcast"
)

func (s *Server) sendVoicemail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voicemail == nil {
		writeError(w, r, http.StatusServiceUnavailable, "voicemail_unavailable", "voicemail integration is not configured")
		return
	}

	var req voicemail.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.deps.Voicemail.Send(r.Context(), req)
	var throttled *voicemail.ThrottledError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": res})
	case errors.Is(err, voicemail.ErrDisabled):
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Slybroadcast integration is disabled",
			"skipped": true,
		})
	case errors.As(err, &throttled):
		secs := int(math.Ceil(throttled.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "throttled",
			"message":             "a voicemail was sent to this number recently",
			"status":              http.StatusTooManyRequests,
			"retry_after_seconds": secs,
		})
	case errors.Is(err, voicemail.ErrInvalidInput),
		errors.Is(err, voicemail.ErrInvalidPhone),
		errors.Is(err, voicemail.ErrNoAudioFile):
		writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, voicemail.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, "voicemail_not_configured", err.Error())
	case errors.Is(err, slybroadcast.ErrDuplicate):
		writeError(w, r, http.StatusConflict, "duplicate_voicemail", err.Error())
	default:
		s.log.Error("server: voicemail send failed", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "voicemail_failed", "voicemail provider request failed")
	}
}

func (s *Server) voicemailStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Voicemail == nil {
		writeJSON(w, http.StatusOK, voicemail.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Voicemail.Status())
}
