package handlers

import (
	"errors"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/fingerprint"
	"github.com/kozaktomas/facewatch/internal/logging"
)

// RecognizeHandler identifies faces in uploaded still images
type RecognizeHandler struct {
	service *enroll.Service
	logger  *slog.Logger
}

// NewRecognizeHandler creates a new recognize handler
func NewRecognizeHandler(service *enroll.Service, logger *slog.Logger) *RecognizeHandler {
	return &RecognizeHandler{service: service, logger: logging.OrDefault(logger)}
}

// Recognize accepts a multipart "image" file or a raw image body and returns
// {faces_detected, matches}.
func (h *RecognizeHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)

	img, err := readImageRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Identify(r.Context(), img)
	if err != nil {
		respondServiceError(w, h.logger, "recognize", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// readImageRequest decodes the "image" form file, or the body when it is sent as image/*.
func readImageRequest(r *http.Request) (image.Image, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, errors.New("failed to read body")
		}
		img, err := fingerprint.Decode(data)
		if err != nil {
			return nil, errors.New("invalid image")
		}
		return img, nil
	}

	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		return nil, errors.New("failed to parse form")
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		return nil, errors.New("no image provided")
	}
	img, err := decodeUpload(files[0])
	if err != nil {
		return nil, errors.New("invalid image")
	}
	return img, nil
}
