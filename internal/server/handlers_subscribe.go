package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lone-cloud/washbell/internal/subscription"
	"github.com/lone-cloud/washbell/internal/util"
)

const maxBodyBytes = 64 << 10

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscription.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		util.JSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if _, err := s.subscriptions.Subscribe(r.Context(), req); err != nil {
		if errors.Is(err, subscription.ErrInvalidSubscription) {
			util.JSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		util.LogAndError(w, s.logger, "Failed to save subscription", http.StatusInternalServerError, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		util.JSONError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := s.subscriptions.Unsubscribe(r.Context(), req.Endpoint); err != nil {
		if errors.Is(err, subscription.ErrMissingEndpoint) {
			util.JSONError(w, "Endpoint is required", http.StatusBadRequest)
			return
		}
		util.LogAndError(w, s.logger, "Failed to remove subscription", http.StatusInternalServerError, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleSubscriptionCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.subscriptions.Count(r.Context())
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to count subscriptions", http.StatusInternalServerError, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]any{"count": count})
}
