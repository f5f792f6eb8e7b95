package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facewatch/internal/enroll"
)

func TestRecognizeHandler(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", 10)
	h := NewRecognizeHandler(env.service, nil)

	rawRequest := func(data []byte, contentType string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", bytes.NewReader(data))
		req.Header.Set("Content-Type", contentType)
		return req
	}

	tests := []struct {
		name     string
		req      *http.Request
		expected int
		faces    int
		match    string
	}{
		{
			name:     "multipart known face",
			req:      multipartRequest(t, http.MethodPost, "/api/v1/recognize", nil, "image", pngBytes(t, 10, 16)),
			expected: http.StatusOK,
			faces:    1,
			match:    "alice",
		},
		{
			name:     "raw body known face",
			req:      rawRequest(pngBytes(t, 10, 16), "image/png"),
			expected: http.StatusOK,
			faces:    1,
			match:    "alice",
		},
		{
			name:     "unknown face",
			req:      multipartRequest(t, http.MethodPost, "/api/v1/recognize", nil, "image", pngBytes(t, 250, 16)),
			expected: http.StatusOK,
			faces:    1,
		},
		{
			name:     "no face",
			req:      multipartRequest(t, http.MethodPost, "/api/v1/recognize", nil, "image", pngBytes(t, 10, 5)),
			expected: http.StatusOK,
		},
		{
			name:     "missing image",
			req:      multipartRequest(t, http.MethodPost, "/api/v1/recognize", nil, "image"),
			expected: http.StatusBadRequest,
		},
		{
			name:     "garbage body",
			req:      rawRequest([]byte("not an image"), "image/jpeg"),
			expected: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Recognize(rec, tc.req)

			assertStatusCode(t, rec, tc.expected)
			if tc.expected != http.StatusOK {
				return
			}

			var resp enroll.Identification
			parseJSONResponse(t, rec, &resp)
			if resp.FacesDetected != tc.faces {
				t.Errorf("expected %d faces, got %d", tc.faces, resp.FacesDetected)
			}
			if resp.Matches == nil {
				t.Fatal("expected matches to be an empty list, not null")
			}
			switch {
			case tc.match == "" && len(resp.Matches) != 0:
				t.Errorf("expected no matches, got %+v", resp.Matches)
			case tc.match != "" && (len(resp.Matches) != 1 || resp.Matches[0].Name != tc.match):
				t.Errorf("expected a single %s match, got %+v", tc.match, resp.Matches)
			}
		})
	}
}
