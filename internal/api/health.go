package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status     string `json:"status"`
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
}

// handleHealthz reports "ok" while the engine accepts work and "stopped"
// with 503 once it was shut down.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()

	body := healthResponse{
		Status:     "ok",
		Workers:    stats.Workers,
		QueueDepth: stats.QueueDepth,
	}
	status := http.StatusOK
	if stats.Stopped {
		body.Status = "stopped"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
