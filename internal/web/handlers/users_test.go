package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/enroll"
)

func newUsersHandler(env *testEnv) (*UsersHandler, *StatsHandler) {
	stats := NewStatsHandler(env.repo, nil)
	return NewUsersHandler(env.repo, env.service, stats, nil), stats
}

func TestUsersHandler_List(t *testing.T) {
	env := newTestEnv(t)
	h, _ := newUsersHandler(env)

	t.Run("empty", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

		assertStatusCode(t, rec, http.StatusOK)
		assertContentType(t, rec, "application/json")
		var resp struct {
			Users []database.UserSummary `json:"users"`
			Count int                    `json:"count"`
		}
		parseJSONResponse(t, rec, &resp)
		if resp.Users == nil || resp.Count != 0 {
			t.Errorf("expected an empty non-null list, got %+v", resp)
		}
	})

	t.Run("sorted by name", func(t *testing.T) {
		env.enroll(t, "bob", 100)
		env.enroll(t, "alice", 10, 12)

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

		var resp struct {
			Users []database.UserSummary `json:"users"`
			Count int                    `json:"count"`
		}
		parseJSONResponse(t, rec, &resp)
		if resp.Count != 2 || resp.Users[0].Name != "alice" || resp.Users[1].Name != "bob" {
			t.Fatalf("unexpected users: %+v", resp.Users)
		}
		if resp.Users[0].SampleCount != 2 {
			t.Errorf("expected alice to have 2 samples, got %d", resp.Users[0].SampleCount)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		env.repo.ListError = errors.New("db down")
		defer func() { env.repo.ListError = nil }()

		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))

		assertStatusCode(t, rec, http.StatusInternalServerError)
		assertJSONError(t, rec, "list users failed")
	})
}

func TestUsersHandler_Get(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", 10, 12, 14)
	h, _ := newUsersHandler(env)

	t.Run("found", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/users/alice", nil), map[string]string{"name": "alice"})
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		assertStatusCode(t, rec, http.StatusOK)
		var resp UserResponse
		parseJSONResponse(t, rec, &resp)
		if resp.Name != "alice" || resp.SampleCount != 3 {
			t.Errorf("unexpected user: %+v", resp)
		}
	})

	t.Run("missing", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody", nil), map[string]string{"name": "nobody"})
		rec := httptest.NewRecorder()
		h.Get(rec, req)

		assertStatusCode(t, rec, http.StatusNotFound)
		assertJSONError(t, rec, database.ErrUserNotFound.Error())
	})
}

func TestUsersHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	h, _ := newUsersHandler(env)

	req := multipartRequest(t, http.MethodPost, "/api/v1/users",
		map[string]string{"name": "  alice  "}, "images", pngBytes(t, 10, 16), pngBytes(t, 12, 16))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	var report enroll.Report
	parseJSONResponse(t, rec, &report)
	if report.User == nil || report.User.Name != "alice" {
		t.Fatalf("expected cleaned name alice, got %+v", report.User)
	}
	if report.Samples != 2 || report.Skipped != 0 {
		t.Errorf("expected 2 samples and none skipped, got %d/%d", report.Samples, report.Skipped)
	}
	if got := env.matcher.Store().Count("alice"); got != 2 {
		t.Errorf("expected matcher to hold 2 alice embeddings, got %d", got)
	}
}

func TestUsersHandler_Create_AcceptsBracketField(t *testing.T) {
	env := newTestEnv(t)
	h, _ := newUsersHandler(env)

	req := multipartRequest(t, http.MethodPost, "/api/v1/users",
		map[string]string{"name": "bob"}, "images[]", pngBytes(t, 50, 16))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
}

func TestUsersHandler_Create_Rejects(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", 10)
	h, _ := newUsersHandler(env)

	tests := []struct {
		name     string
		fields   map[string]string
		files    [][]byte
		expected int
	}{
		{"no images", map[string]string{"name": "bob"}, nil, http.StatusBadRequest},
		{"undecodable image", map[string]string{"name": "bob"}, [][]byte{[]byte("not an image")}, http.StatusBadRequest},
		{"empty name", map[string]string{"name": "   "}, [][]byte{pngBytes(t, 50, 16)}, http.StatusBadRequest},
		{"existing user", map[string]string{"name": "Alice"}, [][]byte{pngBytes(t, 50, 16)}, http.StatusConflict},
		{"no face", map[string]string{"name": "bob"}, [][]byte{pngBytes(t, 50, 5)}, http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := multipartRequest(t, http.MethodPost, "/api/v1/users", tc.fields, "images", tc.files...)
			rec := httptest.NewRecorder()
			h.Create(rec, req)

			assertStatusCode(t, rec, tc.expected)
		})
	}

	if exists, _ := env.repo.UserExists(context.Background(), "bob"); exists {
		t.Error("rejected requests must not store a user")
	}
}

func TestUsersHandler_Create_Replace(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", 10, 12)
	h, _ := newUsersHandler(env)

	req := multipartRequest(t, http.MethodPost, "/api/v1/users",
		map[string]string{"name": "alice", "replace": "true"}, "images", pngBytes(t, 90, 16))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	assertStatusCode(t, rec, http.StatusCreated)
	var report enroll.Report
	parseJSONResponse(t, rec, &report)
	if !report.Replaced {
		t.Error("expected report to mark the user as replaced")
	}
	if got := env.matcher.Store().Count("alice"); got != 1 {
		t.Errorf("expected 1 embedding after replace, got %d", got)
	}
}

func TestUsersHandler_Create_InvalidatesStats(t *testing.T) {
	env := newTestEnv(t)
	h, stats := newUsersHandler(env)

	rec := httptest.NewRecorder()
	stats.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	if _, ok := stats.cache.get(); !ok {
		t.Fatal("expected stats to be cached")
	}

	req := multipartRequest(t, http.MethodPost, "/api/v1/users",
		map[string]string{"name": "alice"}, "images", pngBytes(t, 10, 16))
	h.Create(httptest.NewRecorder(), req)

	if _, ok := stats.cache.get(); ok {
		t.Error("expected enrollment to invalidate cached stats")
	}
}

func TestUsersHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		user       string
		expected   int
		embeddings int
		remaining  int
	}{
		{"whole user", "", "alice", http.StatusOK, 2, 0},
		{"one sample", "?one=true", "alice", http.StatusOK, 1, 1},
		{"unknown user", "", "nobody", http.StatusNotFound, 0, 2},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.enroll(t, "alice", 10, 12)
			h, _ := newUsersHandler(env)

			req := requestWithChiParams(
				httptest.NewRequest(http.MethodDelete, "/api/v1/users/"+tc.user+tc.query, nil),
				map[string]string{"name": tc.user})
			rec := httptest.NewRecorder()
			h.Delete(rec, req)

			assertStatusCode(t, rec, tc.expected)
			if tc.expected == http.StatusOK {
				var resp struct {
					Deleted    string `json:"deleted"`
					Embeddings int    `json:"embeddings"`
				}
				parseJSONResponse(t, rec, &resp)
				if resp.Deleted != tc.user || resp.Embeddings != tc.embeddings {
					t.Errorf("unexpected response: %+v", resp)
				}
			}
			if got := env.matcher.Store().Count("alice"); got != tc.remaining {
				t.Errorf("expected %d alice embeddings left, got %d", tc.remaining, got)
			}
		})
	}
}

func TestUsersHandler_Similar(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice", 10)
	env.enroll(t, "bob", 30)
	env.enroll(t, "carol", 200)
	h, _ := newUsersHandler(env)

	t.Run("nearest first", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/similar?limit=1", nil),
			map[string]string{"name": "alice"})
		rec := httptest.NewRecorder()
		h.Similar(rec, req)

		assertStatusCode(t, rec, http.StatusOK)
		var resp struct {
			Name    string                 `json:"name"`
			Similar []database.SimilarUser `json:"similar"`
		}
		parseJSONResponse(t, rec, &resp)
		if len(resp.Similar) != 1 || resp.Similar[0].Name != "bob" {
			t.Errorf("expected bob as nearest user, got %+v", resp.Similar)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/similar?limit=abc", nil),
			map[string]string{"name": "alice"})
		rec := httptest.NewRecorder()
		h.Similar(rec, req)

		assertStatusCode(t, rec, http.StatusBadRequest)
		assertJSONError(t, rec, "invalid limit")
	})

	t.Run("unknown user", func(t *testing.T) {
		req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/users/nobody/similar", nil),
			map[string]string{"name": "nobody"})
		rec := httptest.NewRecorder()
		h.Similar(rec, req)

		assertStatusCode(t, rec, http.StatusNotFound)
	})
}
