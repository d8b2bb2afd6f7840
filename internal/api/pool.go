package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/seantiz/anvil/internal/engine"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

// poolResponse is the JSON response for the /v1/pool endpoints.
type poolResponse struct {
	MaxThreads int                 `json:"max_threads"`
	Workers    []engine.WorkerInfo `json:"workers"`
}

// setPoolRequest is the JSON body for PUT /v1/pool.
type setPoolRequest struct {
	MaxThreads *int `json:"max_threads"`
}

func (s *Server) poolView() poolResponse {
	return poolResponse{
		MaxThreads: s.engine.MaxThreads(),
		Workers:    s.engine.Workers(),
	}
}

func (s *Server) handleGetPool(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.poolView())
}

func (s *Server) handleSetPool(w http.ResponseWriter, r *http.Request) {
	var req setPoolRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.MaxThreads == nil {
		s.writeError(w, http.StatusBadRequest, "max_threads is required")
		return
	}

	applied := s.engine.SetMaxThreads(*req.MaxThreads)
	s.logger.Info("pool resized", "requested", *req.MaxThreads, "max_threads", applied)

	s.writeJSON(w, http.StatusOK, s.poolView())
}

// waitTimeout reads timeout_ms, falling back to the default and capping it.
func waitTimeout(r *http.Request) time.Duration {
	ms := parseIntQuery(r, "timeout_ms", 0)
	if ms <= 0 {
		return defaultWaitTimeout
	}
	return min(time.Duration(ms)*time.Millisecond, maxWaitTimeout)
}

func (s *Server) handleWaitPool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), waitTimeout(r))
	defer cancel()

	if err := s.engine.WaitForAll(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, http.StatusRequestTimeout, "actions still in flight")
			return
		}
		if errors.Is(err, context.Canceled) {
			return // Client disconnected.
		}
		s.logger.Error("wait for all actions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to wait")
		return
	}

	s.writeJSON(w, http.StatusOK, s.engine.Stats())
}
