package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *database.Stats
	expiresAt time.Time
	ttl       time.Duration
	now       func() time.Time
}

func (c *statsCache) get() (*database.Stats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || c.now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *database.Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = c.now().Add(c.ttl)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	repo   database.StatsReader
	cache  statsCache
	logger *slog.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(repo database.StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		repo:   repo,
		cache:  statsCache{ttl: constants.StatsCacheTTL, now: time.Now},
		logger: logging.OrDefault(logger),
	}
}

// InvalidateCache clears the cached stats so the next request computes fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// Get returns the dashboard statistics
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.repo.Stats(r.Context(), constants.MostActiveUsersLimit)
	if err != nil {
		respondServiceError(w, h.logger, "compute stats", err)
		return
	}
	if stats.MostActiveUsers == nil {
		stats.MostActiveUsers = []database.UserActivity{}
	}

	h.cache.set(stats)
	respondJSON(w, http.StatusOK, stats)
}
