package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"sync"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// maxConfigPatchSize limits the PATCH body.
const maxConfigPatchSize = 64 << 10

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	mu      sync.RWMutex
	config  config.Config
	matcher *facematch.Matcher
	logger  *slog.Logger
}

// NewConfigHandler creates a new config handler. matcher may be nil, in which case
// tolerance changes are stored but not applied.
func NewConfigHandler(cfg config.Config, matcher *facematch.Matcher, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		matcher: matcher,
		logger:  logging.OrDefault(logger),
	}
}

// ConfigPatchResponse reports the outcome of a configuration merge.
type ConfigPatchResponse struct {
	Config config.Config `json:"config"`
	// Applied lists settings that took effect immediately.
	Applied []string `json:"applied"`
	// RestartRequired is set when other settings changed; they apply on the next start.
	RestartRequired bool `json:"restart_required"`
}

// Config returns the current configuration.
func (h *ConfigHandler) Config() config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Get returns the current configuration with secrets redacted
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Config().Redacted())
}

// Patch merges a partial YAML or JSON document into the configuration.
// The merged result is validated; on error nothing changes.
func (h *ConfigHandler) Patch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConfigPatchSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	merged, err := h.config.Merge(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := ConfigPatchResponse{Applied: []string{}}
	rest := h.config
	if merged.Detection.Tolerance != h.config.Detection.Tolerance && h.matcher != nil {
		if err := h.matcher.SetTolerance(merged.Detection.Tolerance); err != nil {
			respondServiceError(w, h.logger, "apply tolerance", err)
			return
		}
		resp.Applied = append(resp.Applied, "detection.tolerance")
		rest.Detection.Tolerance = merged.Detection.Tolerance
	}

	// Anything not applied live needs a restart.
	resp.RestartRequired = !reflect.DeepEqual(rest, merged)

	h.config = merged
	resp.Config = merged.Redacted()

	h.logger.Info("configuration updated",
		"applied", resp.Applied,
		"restart_required", resp.RestartRequired)
	respondJSON(w, http.StatusOK, resp)
}
