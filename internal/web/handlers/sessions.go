package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

const maxSessionListLimit = 200

// SessionLister lists persisted session statistics
type SessionLister interface {
	ListSessions(ctx context.Context, limit int) ([]database.SessionRecord, error)
}

// SessionsHandler handles recognition session history
type SessionsHandler struct {
	repo   SessionLister
	logger *slog.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(repo SessionLister, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{repo: repo, logger: logging.OrDefault(logger)}
}

// List returns the most recent sessions first.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r, constants.DefaultSessionListLimit, maxSessionListLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), limit)
	if err != nil {
		respondServiceError(w, h.logger, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []database.SessionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
