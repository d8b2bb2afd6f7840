package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/catalog"
	"github.com/seantiz/anvil/internal/engine"
	"github.com/seantiz/anvil/internal/model"
	"github.com/seantiz/anvil/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// submitActionRequest is the JSON body for POST /v1/actions.
type submitActionRequest struct {
	Kind      string          `json:"kind"`
	Name      string          `json:"name"`
	Params    json.RawMessage `json:"params"`
	Wait      bool            `json:"wait"`
	TimeoutMS int             `json:"timeout_ms"`
}

// listActionsResponse wraps the paginated journal listing.
type listActionsResponse struct {
	Actions []*model.ActionRecord `json:"actions"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
}

func (s *Server) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Kind == "" {
		s.writeError(w, http.StatusBadRequest, "kind is required")
		return
	}
	if req.Name == "" {
		req.Name = req.Kind
	}

	run, err := s.kinds.Build(req.Kind, req.Params)
	if errors.Is(err, catalog.ErrUnknownKind) || errors.Is(err, catalog.ErrInvalidParams) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("build action", "kind", req.Kind, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to build action")
		return
	}

	a, err := s.engine.Submit(req.Name, run, nil)
	if errors.Is(err, engine.ErrEngineStopped) {
		s.writeError(w, http.StatusServiceUnavailable, "engine is stopped")
		return
	}
	if err != nil {
		s.logger.Error("submit action", "kind", req.Kind, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit action")
		return
	}
	s.live.add(a)

	if !req.Wait {
		s.writeJSON(w, http.StatusAccepted, a.Info())
		return
	}

	timeout := defaultWaitTimeout
	if req.TimeoutMS > 0 {
		timeout = min(time.Duration(req.TimeoutMS)*time.Millisecond, maxWaitTimeout)
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	if err := s.engine.WaitForActions(ctx, a); err != nil {
		// Still running; report it as accepted.
		s.writeJSON(w, http.StatusAccepted, a.Info())
		return
	}
	s.writeJSON(w, http.StatusOK, a.Info())
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	if a, ok := s.live.get(ref); ok {
		s.writeJSON(w, http.StatusOK, a.Info())
		return
	}

	rec, err := s.store.GetAction(r.Context(), ref)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "action not found")
		return
	}
	if err != nil {
		s.logger.Error("get action", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get action")
		return
	}

	s.writeJSON(w, http.StatusOK, recordInfo(rec))
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.store.ListActions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list actions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}

	if records == nil {
		records = []*model.ActionRecord{}
	}

	s.writeJSON(w, http.StatusOK, listActionsResponse{
		Actions: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// recordInfo renders a journal entry in the same shape as a live handle.
func recordInfo(rec *model.ActionRecord) engine.ActionInfo {
	queued, finished := rec.QueuedAt, rec.FinishedAt
	return engine.ActionInfo{
		ID:         rec.ActionID,
		Ref:        rec.Ref,
		Name:       rec.Name,
		Discipline: rec.Discipline,
		State:      engine.StateCompleted.String(),
		Error:      rec.Error,
		WorkerID:   rec.WorkerID,
		QueuedAt:   &queued,
		StartedAt:  rec.StartedAt,
		FinishedAt: &finished,
	}
}
