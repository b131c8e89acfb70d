package server

import (
	"net/http"
	"time"

	"github.com/lone-cloud/washbell/internal/util"
)

type healthResponse struct {
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	Subscriptions int    `json:"subscriptions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := s.subscriptions.Count(r.Context())
	if err != nil {
		util.LogAndError(w, s.logger, "Storage unavailable", http.StatusServiceUnavailable, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, healthResponse{
		Version:       s.version,
		Uptime:        util.FormatUptime(time.Since(s.startTime)),
		Subscriptions: count,
	})
}

func (s *Server) handleVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.IsVAPIDConfigured() {
		util.JSONError(w, "VAPID keys not configured", http.StatusInternalServerError)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]string{"publicKey": s.cfg.VAPIDPublicKey})
}
