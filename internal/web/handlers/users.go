package handlers

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// maxSimilarLimit caps the similar users query.
const maxSimilarLimit = 50

// UsersHandler handles enrollment endpoints
type UsersHandler struct {
	repo    database.UserReader
	service *enroll.Service
	stats   *StatsHandler
	logger  *slog.Logger
}

// NewUsersHandler creates a new users handler. stats may be nil.
func NewUsersHandler(repo database.UserReader, service *enroll.Service, stats *StatsHandler, logger *slog.Logger) *UsersHandler {
	return &UsersHandler{
		repo:    repo,
		service: service,
		stats:   stats,
		logger:  logging.OrDefault(logger),
	}
}

// UserResponse is the detail view of one user.
type UserResponse struct {
	Name        string    `json:"name"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *UsersHandler) invalidateStats() {
	if h.stats != nil {
		h.stats.InvalidateCache()
	}
}

// List returns every enrolled user.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, "list users", err)
		return
	}
	if users == nil {
		users = []database.UserSummary{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// Get returns one user.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	user, err := h.repo.GetUser(r.Context(), name)
	if err != nil {
		respondServiceError(w, h.logger, "get user", err)
		return
	}
	respondJSON(w, http.StatusOK, UserResponse{
		Name:        user.Name,
		SampleCount: len(user.Embeddings),
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	})
}

// Create enrolls a user from a multipart form with a "name" field and one or more
// "images" files. "replace=true" replaces the samples of an existing user.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse form")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		files = r.MultipartForm.File["images[]"]
	}
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}

	samples := make([]image.Image, 0, len(files))
	for _, fh := range files {
		img, err := decodeUpload(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", fh.Filename, err))
			return
		}
		samples = append(samples, img)
	}

	report, err := h.service.Enroll(r.Context(), enroll.Request{
		Name:    r.FormValue("name"),
		Samples: samples,
		Replace: r.FormValue("replace") == "true",
	}, nil)
	if err != nil {
		respondServiceError(w, h.logger, "enroll", err)
		return
	}
	h.invalidateStats()

	h.logger.Info("user enrolled via dashboard",
		"user", sanitizeForLog(report.User.Name),
		"samples", report.Samples,
		"skipped", report.Skipped,
		"replaced", report.Replaced)
	respondJSON(w, http.StatusCreated, report)
}

// Delete removes a user, or only its oldest sample with ?one=true.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if r.URL.Query().Get("one") == "true" {
		if err := h.service.DeleteOne(r.Context(), name); err != nil {
			respondServiceError(w, h.logger, "delete sample", err)
			return
		}
		h.invalidateStats()
		respondJSON(w, http.StatusOK, map[string]any{"deleted": name, "embeddings": 1})
		return
	}

	n, err := h.service.Delete(r.Context(), name)
	if err != nil {
		respondServiceError(w, h.logger, "delete user", err)
		return
	}
	h.invalidateStats()
	respondJSON(w, http.StatusOK, map[string]any{"deleted": name, "embeddings": n})
}

// Similar returns the enrolled users whose faces are nearest to the named user.
func (h *UsersHandler) Similar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit, ok := queryLimit(r, constants.DefaultSimilarLimit, maxSimilarLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	similar, err := h.service.SimilarUsers(r.Context(), name, limit)
	if err != nil {
		respondServiceError(w, h.logger, "similar users", err)
		return
	}
	if similar == nil {
		similar = []database.SimilarUser{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":    name,
		"similar": similar,
	})
}

// decodeUpload reads and decodes one uploaded image.
func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return fingerprint.Decode(data)
}
