package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nerrad567/garagegate/internal/coordinator"
	"github.com/nerrad567/garagegate/internal/door"
)

// submitTimeout bounds how long a request waits for room in the inbox.
const submitTimeout = 2 * time.Second

// history limits for list endpoints.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CommandResponse acknowledges a queued door command.
type CommandResponse struct {
	CommandID string `json:"command_id"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

// handleGetDoor returns the current door state.
func (s *Server) handleGetDoor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.door.Snapshot())
}

// handleDoorCommand queues a remote open or close. The caller has been
// authenticated with control scope, so the command carries the shared
// secret and the coordinator validates it like an MQTT command. 202 means
// queued, not executed.
func (s *Server) handleDoorCommand(w http.ResponseWriter, r *http.Request) {
	kind, err := door.ParseKind(chi.URLParam(r, "action"))
	if err != nil {
		writeNotFound(w, "unknown door action")
		return
	}
	caller := principalFrom(r.Context())

	cmd := door.Command{
		ID:        uuid.NewString(),
		Kind:      kind,
		Source:    door.SourceNetwork,
		Token:     string(s.secret),
		Timestamp: time.Now(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), submitTimeout)
	defer cancel()

	switch err := s.door.Submit(ctx, cmd); {
	case err == nil:
	case errors.Is(err, coordinator.ErrStopped):
		writeUnavailable(w, "controller is shutting down")
		return
	case errors.Is(err, coordinator.ErrInboxFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeBusy, "controller is busy, retry shortly")
		return
	default:
		s.logger.Error("submitting door command", "error", err, "kind", kind)
		writeInternalError(w, "failed to submit command")
		return
	}

	s.logger.Info("remote door command queued",
		"command_id", cmd.ID,
		"kind", kind,
		"subject", caller.Subject,
		"remote", r.RemoteAddr,
	)
	writeJSON(w, http.StatusAccepted, CommandResponse{
		CommandID: cmd.ID,
		Kind:      string(kind),
		Status:    "queued",
	})
}

// handleTransitionHistory returns recent door transitions, newest first.
func (s *Server) handleTransitionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not available")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	transitions, err := s.history.Transitions(r.Context(), limit)
	if err != nil {
		s.logger.Error("loading door history", "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// handleDecisionHistory returns recent access decisions, newest first.
func (s *Server) handleDecisionHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is not available")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	decisions, err := s.history.Decisions(r.Context(), limit)
	if err != nil {
		s.logger.Error("loading decisions", "error", err)
		writeInternalError(w, "failed to load decisions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// parseLimit reads the optional ?limit= query parameter.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		writeBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, true
}
