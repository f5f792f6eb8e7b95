package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facewatch/internal/database/mock"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// fakeEngine finds one face in images at least 10px wide and embeds it as four
// copies of the red channel of the top-left pixel.
type fakeEngine struct{}

func (fakeEngine) Detect(ctx context.Context, img image.Image) ([]facematch.Box, error) {
	if img.Bounds().Dx() < 10 {
		return nil, nil
	}
	return []facematch.Box{{X: 2, Y: 2, W: 8, H: 8}}, nil
}

func (fakeEngine) Embed(ctx context.Context, img image.Image, boxes []facematch.Box, jitters int) ([]facematch.Embedding, error) {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	v := float32(r>>8) / 255
	out := make([]facematch.Embedding, len(boxes))
	for i := range out {
		out[i] = facematch.Embedding{v, v, v, v}
	}
	return out, nil
}

func (fakeEngine) Name() string        { return "fake" }
func (fakeEngine) DetectionWidth() int { return 1024 }
func (fakeEngine) Close() error        { return nil }

type testEnv struct {
	repo    *mock.MockRepository
	matcher *facematch.Matcher
	service *enroll.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := mock.NewMockRepository()
	matcher, err := facematch.NewMatcher(facematch.NewStore(), 0.6)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	service := enroll.NewService(enroll.Deps{
		Repo:    repo,
		Engine:  fakeEngine{},
		Matcher: matcher,
		Jitters: 1,
	})
	return &testEnv{repo: repo, matcher: matcher, service: service}
}

// enroll stores a user with one sample per value.
func (e *testEnv) enroll(t *testing.T, name string, values ...uint8) {
	t.Helper()
	samples := make([]image.Image, len(values))
	for i, v := range values {
		samples[i] = solidImage(v, 16)
	}
	if _, err := e.service.Enroll(context.Background(), enroll.Request{Name: name, Samples: samples}, nil); err != nil {
		t.Fatalf("failed to enroll %s: %v", name, err)
	}
}

func solidImage(v uint8, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := range size {
		for x := range size {
			img.Set(x, y, color.RGBA{v, 0, 0, 255})
		}
	}
	return img
}

// pngBytes encodes a solid square image whose embedding is derived from v.
func pngBytes(t *testing.T, v uint8, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(v, size)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a multipart request with form fields and files under fileField.
func multipartRequest(t *testing.T, method, path string, fields map[string]string, fileField string, files ...[]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	for i, data := range files {
		fw, err := mw.CreateFormFile(fileField, "sample"+string(rune('a'+i))+".png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
