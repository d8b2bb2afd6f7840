package api

import (
	"net/http"

	"github.com/seantiz/anvil/internal/engine"
)

// journalStats is the journal part of GET /v1/stats.
type journalStats struct {
	Total         int            `json:"total"`
	ByOutcome     map[string]int `json:"by_outcome"`
	ByDiscipline  map[string]int `json:"by_discipline"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Engine  engine.Stats `json:"engine"`
	Journal journalStats `json:"journal"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetActionStats(r.Context())
	if err != nil {
		s.logger.Error("get action stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Engine: s.engine.Stats(),
		Journal: journalStats{
			Total:         stats.Total,
			ByOutcome:     stats.CountByOutcome,
			ByDiscipline:  stats.CountByDiscipline,
			AvgDurationMS: stats.AvgDurationMS,
		},
	})
}
