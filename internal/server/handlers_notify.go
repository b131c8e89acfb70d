package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lone-cloud/washbell/internal/delivery"
	"github.com/lone-cloud/washbell/internal/notification"
	"github.com/lone-cloud/washbell/internal/util"
)

type notifyRequest struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type notifyResponse struct {
	Success bool   `json:"success"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		util.JSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	kind, err := notification.ParseKind(req.Type)
	if err != nil {
		util.JSONError(w, "Invalid notification type. Must be 'washing' or 'drying'", http.StatusBadRequest)
		return
	}

	payload, err := s.composer.Compose(kind, req.Message)
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to compose notification", http.StatusInternalServerError, err)
		return
	}

	// Lift the server write deadline for the length of the broadcast.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{}) //nolint:errcheck // unsupported by test recorders

	result, err := s.engine.Deliver(r.Context(), payload)
	if err != nil {
		if errors.Is(err, delivery.ErrVAPIDNotConfigured) {
			util.LogAndError(w, s.logger, "VAPID keys not configured", http.StatusInternalServerError, err)
			return
		}
		util.LogAndError(w, s.logger, "Failed to send notification", http.StatusInternalServerError, err)
		return
	}

	if result.Empty() {
		util.JSONError(w, "No subscriptions found", http.StatusNotFound)
		return
	}

	s.logger.Info("Notification broadcast",
		"type", kind,
		"sent", result.Sent,
		"failed", result.Failed,
		"pruned", result.Pruned,
	)

	util.WriteJSON(w, http.StatusOK, notifyResponse{
		Success: true,
		Sent:    result.Sent,
		Failed:  result.Failed,
		Message: fmt.Sprintf("Notification sent to %d device(s)", result.Sent),
	})
}
