// Package dbtest holds repository behaviour tests shared by every database backend.
package dbtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
)

func embedding(dim int, v float32) []float32 {
	out := make([]float32, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

// RunRepositoryTests exercises a freshly migrated, empty repository.
func RunRepositoryTests(t *testing.T, repo database.Repository) {
	t.Helper()
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		u, err := repo.SaveUser(ctx, "alice", [][]float32{embedding(128, 0), embedding(128, 0.1)}, false)
		if err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}
		if u.Name != "alice" || len(u.Embeddings) != 2 {
			t.Fatalf("unexpected user: %+v", u)
		}

		got, err := repo.GetUser(ctx, "alice")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if len(got.Embeddings) != 2 {
			t.Fatalf("expected 2 embeddings, got %d", len(got.Embeddings))
		}
		if got.Embeddings[0].Dim != 128 || len(got.Embeddings[0].Embedding) != 128 {
			t.Errorf("expected 128 dimensions, got %d", len(got.Embeddings[0].Embedding))
		}
		if got.Embeddings[1].Embedding[5] != 0.1 {
			t.Errorf("expected embedding values to round-trip, got %v", got.Embeddings[1].Embedding[5])
		}
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		_, err := repo.SaveUser(ctx, "alice", [][]float32{embedding(128, 0.2)}, false)
		if !errors.Is(err, database.ErrUserExists) {
			t.Errorf("expected ErrUserExists, got %v", err)
		}
	})

	t.Run("Replace", func(t *testing.T) {
		u, err := repo.SaveUser(ctx, "alice", [][]float32{embedding(128, 0.3)}, true)
		if err != nil {
			t.Fatalf("replace failed: %v", err)
		}
		if len(u.Embeddings) != 1 {
			t.Errorf("expected replaced user to own 1 embedding, got %d", len(u.Embeddings))
		}
	})

	t.Run("Exists", func(t *testing.T) {
		ok, err := repo.UserExists(ctx, "alice")
		if err != nil || !ok {
			t.Errorf("expected alice to exist (err %v)", err)
		}
		ok, err = repo.UserExists(ctx, "nobody")
		if err != nil || ok {
			t.Errorf("expected nobody to be absent (err %v)", err)
		}
		if _, err := repo.GetUser(ctx, "nobody"); !errors.Is(err, database.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("LoadEmbeddings", func(t *testing.T) {
		if _, err := repo.SaveUser(ctx, "bob", [][]float32{embedding(128, 1), embedding(128, 1.1), embedding(128, 1.2)}, false); err != nil {
			t.Fatalf("SaveUser failed: %v", err)
		}

		all, err := repo.LoadEmbeddings(ctx)
		if err != nil {
			t.Fatalf("LoadEmbeddings failed: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 embeddings, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].ID <= all[i-1].ID {
				t.Error("expected embeddings ordered by id")
			}
		}
		if all[0].UserName != "alice" || all[3].UserName != "bob" {
			t.Errorf("unexpected owners: %s, %s", all[0].UserName, all[3].UserName)
		}

		count, maxID, err := repo.CountEmbeddings(ctx)
		if err != nil {
			t.Fatalf("CountEmbeddings failed: %v", err)
		}
		if count != 4 || maxID != all[3].ID {
			t.Errorf("expected count 4 and max id %d, got %d/%d", all[3].ID, count, maxID)
		}
	})

	t.Run("RecognitionLogsAndList", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Millisecond)
		for i := range 3 {
			if err := repo.LogRecognition(ctx, database.RecognitionLog{
				SessionID: "s1", UserName: "bob", Confidence: 0.8, IsMatch: true,
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}); err != nil {
				t.Fatalf("LogRecognition failed: %v", err)
			}
		}

		users, err := repo.ListUsers(ctx)
		if err != nil {
			t.Fatalf("ListUsers failed: %v", err)
		}
		if len(users) != 2 || users[0].Name != "alice" || users[1].Name != "bob" {
			t.Fatalf("unexpected users: %+v", users)
		}
		bob := users[1]
		if bob.SampleCount != 3 || bob.RecognitionCount != 3 {
			t.Errorf("expected 3 samples and 3 recognitions, got %d/%d", bob.SampleCount, bob.RecognitionCount)
		}
		if bob.LastSeen == nil || !bob.LastSeen.Equal(now.Add(2*time.Second)) {
			t.Errorf("unexpected last seen: %v", bob.LastSeen)
		}
		if users[0].LastSeen != nil {
			t.Error("alice was never seen")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		st, err := repo.Stats(ctx, 5)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if st.TotalUsers != 2 || st.TotalEmbeddings != 4 {
			t.Errorf("expected 2 users and 4 embeddings, got %d/%d", st.TotalUsers, st.TotalEmbeddings)
		}
		if st.AvgEmbeddingsPerUser != 2 {
			t.Errorf("expected 2 embeddings per user, got %v", st.AvgEmbeddingsPerUser)
		}
		if len(st.MostActiveUsers) != 1 || st.MostActiveUsers[0].Name != "bob" || st.MostActiveUsers[0].Recognitions != 3 {
			t.Errorf("unexpected most active: %+v", st.MostActiveUsers)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		start := time.Now().UTC().Truncate(time.Millisecond)
		old := database.SessionRecord{
			ID: "old", Source: "dir:/tmp", Status: database.SessionCompleted,
			StartedAt: start.Add(-40 * 24 * time.Hour), EndedAt: start.Add(-40*24*time.Hour + time.Minute),
		}
		cur := database.SessionRecord{
			ID: "cur", Source: "0", Status: database.SessionCancelled,
			StartedAt: start, EndedAt: start.Add(time.Minute),
			TotalFrames: 100, DroppedFrames: 2, ErrorCount: 1, RecognitionAttempts: 50,
			Recognitions: 10, UnknownFaces: 3, AverageFPS: 24.5, AverageProcessingMS: 12.5, AverageMemoryMB: 80,
		}
		for _, s := range []database.SessionRecord{old, cur} {
			if err := repo.SaveSession(ctx, s); err != nil {
				t.Fatalf("SaveSession failed: %v", err)
			}
		}
		cur.TotalFrames = 120
		if err := repo.SaveSession(ctx, cur); err != nil {
			t.Fatalf("SaveSession update failed: %v", err)
		}

		list, err := repo.ListSessions(ctx, 10)
		if err != nil {
			t.Fatalf("ListSessions failed: %v", err)
		}
		if len(list) != 2 || list[0].ID != "cur" {
			t.Fatalf("expected newest session first, got %+v", list)
		}
		if list[0].TotalFrames != 120 || list[0].AverageFPS != 24.5 || list[0].Status != database.SessionCancelled {
			t.Errorf("unexpected session: %+v", list[0])
		}

		if err := repo.LogRecognition(ctx, database.RecognitionLog{
			SessionID: "old", UserName: "alice", Confidence: 0.7, IsMatch: true,
			CreatedAt: start.Add(-40 * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("LogRecognition failed: %v", err)
		}

		logs, sessions, err := repo.Cleanup(ctx, start.Add(-30*24*time.Hour))
		if err != nil {
			t.Fatalf("Cleanup failed: %v", err)
		}
		if logs != 1 || sessions != 1 {
			t.Errorf("expected 1 log and 1 session removed, got %d/%d", logs, sessions)
		}
	})

	t.Run("SimilarUsers", func(t *testing.T) {
		finder, ok := repo.(database.SimilarFinder)
		if !ok {
			t.Skip("backend has no native vector search")
		}
		got, err := finder.FindSimilarUsers(ctx, embedding(128, 0.95), "", 5)
		if err != nil {
			t.Fatalf("FindSimilarUsers failed: %v", err)
		}
		if len(got) != 2 || got[0].Name != "bob" {
			t.Errorf("expected bob nearest, got %+v", got)
		}
		got, err = finder.FindSimilarUsers(ctx, embedding(128, 0.95), "bob", 5)
		if err != nil || len(got) != 1 || got[0].Name != "alice" {
			t.Errorf("expected only alice when bob is excluded, got %+v (err %v)", got, err)
		}
	})

	t.Run("DeleteOne", func(t *testing.T) {
		before, err := repo.GetUser(ctx, "bob")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		id, err := repo.DeleteOldestEmbedding(ctx, "bob")
		if err != nil {
			t.Fatalf("DeleteOldestEmbedding failed: %v", err)
		}
		if id != before.Embeddings[0].ID {
			t.Errorf("expected oldest embedding %d removed, got %d", before.Embeddings[0].ID, id)
		}
		after, err := repo.GetUser(ctx, "bob")
		if err != nil {
			t.Fatalf("GetUser failed: %v", err)
		}
		if len(after.Embeddings) != 2 {
			t.Errorf("expected 2 remaining embeddings, got %d", len(after.Embeddings))
		}
	})

	t.Run("DeleteOneRemovesEmptyUser", func(t *testing.T) {
		if _, err := repo.DeleteOldestEmbedding(ctx, "alice"); err != nil {
			t.Fatalf("DeleteOldestEmbedding failed: %v", err)
		}
		if _, err := repo.GetUser(ctx, "alice"); !errors.Is(err, database.ErrUserNotFound) {
			t.Errorf("expected alice removed with her last embedding, got %v", err)
		}
	})

	t.Run("DeleteUser", func(t *testing.T) {
		ids, err := repo.DeleteUser(ctx, "bob")
		if err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 embedding ids, got %v", ids)
		}
		if _, err := repo.DeleteUser(ctx, "bob"); !errors.Is(err, database.ErrUserNotFound) {
			t.Errorf("expected ErrUserNotFound on second delete, got %v", err)
		}
		count, _, err := repo.CountEmbeddings(ctx)
		if err != nil || count != 0 {
			t.Errorf("expected no embeddings left, got %d (err %v)", count, err)
		}
	})
}
