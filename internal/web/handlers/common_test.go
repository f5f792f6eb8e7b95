package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facewatch/internal/capture"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"user not found", fmt.Errorf("deleting user x: %w", database.ErrUserNotFound), http.StatusNotFound},
		{"user exists", fmt.Errorf("%w: x", database.ErrUserExists), http.StatusConflict},
		{"no face", enroll.ErrNoFace, http.StatusUnprocessableEntity},
		{"non-finite embedding", fmt.Errorf("query 0: %w", facematch.ErrInvalidEmbedding), http.StatusUnprocessableEntity},
		{"embedding dimension", fmt.Errorf("embedding 1 of bob: %w", facematch.ErrDimensionMismatch), http.StatusUnprocessableEntity},
		{"empty label", facematch.ErrEmptyLabel, http.StatusBadRequest},
		{"invalid tolerance", facematch.ErrInvalidTolerance, http.StatusBadRequest},
		{"invalid request", fmt.Errorf("%w: too many samples", enroll.ErrInvalidRequest), http.StatusBadRequest},
		{"device unavailable", capture.ErrDeviceUnavailable, http.StatusServiceUnavailable},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.expected {
				t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.expected)
			}
		})
	}
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query    string
		expected int
		ok       bool
	}{
		{"", 5, true},
		{"?limit=3", 3, true},
		{"?limit=80", 50, true},
		{"?limit=0", 0, false},
		{"?limit=-2", 0, false},
		{"?limit=x", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/a/similar"+tc.query, nil)
			got, ok := queryLimit(req, 5, 50)
			if got != tc.expected || ok != tc.ok {
				t.Errorf("queryLimit = (%d, %v), want (%d, %v)", got, ok, tc.expected, tc.ok)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("alice\nforged line\r"); got != "aliceforged line" {
		t.Errorf("unexpected sanitized value %q", got)
	}
}

func TestRespondServiceError_HidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	respondServiceError(rec, discardLogger(), "enroll", errors.New("pq: password authentication failed"))

	assertStatusCode(t, rec, http.StatusInternalServerError)
	assertJSONError(t, rec, "enroll failed")
}
