package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports the status of each module
type HealthHandler struct {
	repo     database.UserReader
	matcher  *facematch.Matcher
	live     *LiveHub
	detector string
	driver   string
	logger   *slog.Logger
}

// HealthDeps are the modules the health endpoint reports on. Live may be nil.
type HealthDeps struct {
	Repo     database.UserReader
	Matcher  *facematch.Matcher
	Live     *LiveHub
	Detector string
	Driver   string
	Logger   *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(deps HealthDeps) *HealthHandler {
	return &HealthHandler{
		repo:     deps.Repo,
		matcher:  deps.Matcher,
		live:     deps.Live,
		detector: deps.Detector,
		driver:   deps.Driver,
		logger:   logging.OrDefault(deps.Logger),
	}
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status         string  `json:"status"`
	Database       string  `json:"database"`
	Driver         string  `json:"driver"`
	Detector       string  `json:"detector"`
	Users          int     `json:"users"`
	Embeddings     int     `json:"embeddings"`
	StoredSamples  int64   `json:"stored_embeddings"`
	Tolerance      float64 `json:"tolerance"`
	SessionRunning bool    `json:"session_running"`
}

// Get checks the database and reports the recognition state.
// It answers 503 when the database is unreachable.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Database: "ok",
		Driver:   h.driver,
		Detector: h.detector,
	}

	count, _, err := h.repo.CountEmbeddings(ctx)
	if err != nil {
		h.logger.Warn("health check: database unavailable", "error", err)
		resp.Status = "degraded"
		resp.Database = "unavailable"
	}
	resp.StoredSamples = count

	if h.matcher != nil {
		store := h.matcher.Store()
		resp.Users = len(store.Labels())
		resp.Embeddings = store.Len()
		resp.Tolerance = h.matcher.Tolerance()
	}
	if h.live != nil {
		resp.SessionRunning = h.live.status().Running
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}
