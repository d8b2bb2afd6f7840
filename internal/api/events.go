package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/anvil/internal/store"
)

// handleStreamEvents streams the lifecycle transitions of one action as
// server-sent events and ends with a "done" event once it completed.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	a, live := s.live.get(ref)
	if !live {
		_, err := s.store.GetAction(r.Context(), ref)
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "action not found")
			return
		}
		if err != nil {
			s.logger.Error("get action for events", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get action")
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	// Journal entries are complete by definition.
	if !live {
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", "stream complete")
		flush()
		return
	}

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	// Subscribe before checking completion so the final transition cannot
	// slip between the two.
	ch, unsub := s.engine.Broker().Subscribe(ref)
	defer unsub()

	w.WriteHeader(http.StatusOK)
	flush()

	if a.Done() {
		_ = writeSSEEvent(w, "done", "stream complete")
		flush()
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				flush()
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("encode action event", "error", err)
				return
			}
			if err := writeSSEEvent(w, "transition", string(data)); err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
