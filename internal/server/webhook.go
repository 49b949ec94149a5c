package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pestline/pestline/internal/sesevents"
)

func (s *Server) sesLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "SES webhook endpoint is active",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// sesWebhook receives SNS deliveries. Processing failures are acknowledged
// with 200 so SNS does not redeliver them.
func (s *Server) sesWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}

	env, err := sesevents.ParseEnvelope(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	log := s.log.With(zap.String("sns_type", env.Type), zap.String("sns_message_id", env.MessageID))

	if s.deps.Verifier != nil {
		if err := s.deps.Verifier.Verify(r.Context(), env); err != nil {
			log.Warn("server: sns signature rejected", zap.Error(err))
			writeError(w, r, http.StatusUnauthorized, "invalid_signature", "invalid signature")
			return
		}
	}

	switch env.Type {
	case sesevents.TypeSubscriptionConfirmation:
		if err := s.deps.Confirmer.Confirm(r.Context(), env); err != nil {
			log.Error("server: sns subscription confirmation failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "subscription_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Subscription confirmed"})
	case sesevents.TypeUnsubscribeConfirmation:
		log.Info("server: sns unsubscribe confirmation", zap.String("topic_arn", env.TopicArn))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Unsubscribe acknowledged"})
	case sesevents.TypeNotification:
		if err := s.deps.Events.ProcessMessage(r.Context(), env.Message); err != nil {
			level := zap.ErrorLevel
			if errors.Is(err, sesevents.ErrEmailLogNotFound) {
				level = zap.WarnLevel
			}
			log.Log(level, "server: ses event processing failed", zap.Error(err))
			writeJSON(w, http.StatusOK, map[string]any{
				"success": false,
				"error":   err.Error(),
				"warning": "Event processing failed but acknowledged",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Event processed"})
	default:
		writeError(w, r, http.StatusBadRequest, "unknown_message_type", "unknown message type "+env.Type)
	}
}
