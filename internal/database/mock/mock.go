// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// MockRepository is an in-memory implementation of database.Repository
type MockRepository struct {
	mu       sync.RWMutex
	users    map[string]*database.User
	logs     []database.RecognitionLog
	sessions map[string]database.SessionRecord
	nextUser int64
	nextEmb  int64
	now      func() time.Time

	// Error injection
	ListError    error
	GetError     error
	SaveError    error
	DeleteError  error
	LogError     error
	SessionError error
	StatsError   error

	// Call tracking
	SaveCalls   []SaveUserCall
	DeleteCalls []string
}

// SaveUserCall records the arguments of a SaveUser call
type SaveUserCall struct {
	Name       string
	Embeddings int
	Replace    bool
}

var _ database.Repository = (*MockRepository)(nil)
var _ database.SimilarFinder = (*MockRepository)(nil)

// NewMockRepository creates a new empty mock repository
func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:    make(map[string]*database.User),
		sessions: make(map[string]database.SessionRecord),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for timestamps
func (m *MockRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// ListUsers returns all users ordered by name
func (m *MockRepository) ListUsers(ctx context.Context) ([]database.UserSummary, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.UserSummary, 0, len(m.users))
	for _, u := range m.users {
		s := database.UserSummary{
			Name:        u.Name,
			SampleCount: len(u.Embeddings),
			CreatedAt:   u.CreatedAt,
			UpdatedAt:   u.UpdatedAt,
		}
		for _, l := range m.logs {
			if l.UserName != u.Name || !l.IsMatch {
				continue
			}
			s.RecognitionCount++
			if s.LastSeen == nil || l.CreatedAt.After(*s.LastSeen) {
				ts := l.CreatedAt
				s.LastSeen = &ts
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetUser returns a copy of the user or ErrUserNotFound
func (m *MockRepository) GetUser(ctx context.Context, name string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[name]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	cp.Embeddings = slices.Clone(u.Embeddings)
	return &cp, nil
}

// UserExists checks if a user is stored
func (m *MockRepository) UserExists(ctx context.Context, name string) (bool, error) {
	if m.GetError != nil {
		return false, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[name]
	return ok, nil
}

// LoadEmbeddings returns all embeddings ordered by ID
func (m *MockRepository) LoadEmbeddings(ctx context.Context) ([]database.StoredEmbedding, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.StoredEmbedding
	for _, u := range m.users {
		out = append(out, u.Embeddings...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CountEmbeddings returns the embedding count and highest ID
func (m *MockRepository) CountEmbeddings(ctx context.Context) (int64, int64, error) {
	embs, err := m.LoadEmbeddings(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(embs) == 0 {
		return 0, 0, nil
	}
	return int64(len(embs)), embs[len(embs)-1].ID, nil
}

// SaveUser stores a user with its embeddings
func (m *MockRepository) SaveUser(ctx context.Context, name string, embeddings [][]float32, replace bool) (*database.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, SaveUserCall{Name: name, Embeddings: len(embeddings), Replace: replace})
	if m.SaveError != nil {
		return nil, m.SaveError
	}

	now := m.now()
	u, exists := m.users[name]
	switch {
	case exists && !replace:
		return nil, database.ErrUserExists
	case exists:
		u.Embeddings = nil
		u.UpdatedAt = now
	default:
		m.nextUser++
		u = &database.User{ID: m.nextUser, Name: name, CreatedAt: now, UpdatedAt: now}
		m.users[name] = u
	}

	for _, e := range embeddings {
		m.nextEmb++
		u.Embeddings = append(u.Embeddings, database.StoredEmbedding{
			ID:        m.nextEmb,
			UserID:    u.ID,
			UserName:  name,
			Embedding: slices.Clone(e),
			Dim:       len(e),
			CreatedAt: now,
		})
	}

	cp := *u
	cp.Embeddings = slices.Clone(u.Embeddings)
	return &cp, nil
}

// DeleteUser removes a user and returns its embedding IDs
func (m *MockRepository) DeleteUser(ctx context.Context, name string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, name)
	if m.DeleteError != nil {
		return nil, m.DeleteError
	}
	u, ok := m.users[name]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	ids := make([]int64, len(u.Embeddings))
	for i, e := range u.Embeddings {
		ids[i] = e.ID
	}
	delete(m.users, name)
	return ids, nil
}

// DeleteOldestEmbedding removes the first embedding of a user
func (m *MockRepository) DeleteOldestEmbedding(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteError != nil {
		return 0, m.DeleteError
	}
	u, ok := m.users[name]
	if !ok || len(u.Embeddings) == 0 {
		return 0, database.ErrUserNotFound
	}
	id := u.Embeddings[0].ID
	u.Embeddings = u.Embeddings[1:]
	if len(u.Embeddings) == 0 {
		delete(m.users, name)
	}
	return id, nil
}

// LogRecognition stores a recognition log
func (m *MockRepository) LogRecognition(ctx context.Context, log database.RecognitionLog) error {
	if m.LogError != nil {
		return m.LogError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = m.now()
	}
	log.ID = int64(len(m.logs) + 1)
	m.logs = append(m.logs, log)
	return nil
}

// Logs returns a copy of the stored recognition logs
func (m *MockRepository) Logs() []database.RecognitionLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.logs)
}

// SaveSession upserts a session record
func (m *MockRepository) SaveSession(ctx context.Context, rec database.SessionRecord) error {
	if m.SessionError != nil {
		return m.SessionError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

// Session returns a stored session by ID
func (m *MockRepository) Session(id string) (database.SessionRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	return rec, ok
}

// ListSessions returns the newest sessions first
func (m *MockRepository) ListSessions(ctx context.Context, limit int) ([]database.SessionRecord, error) {
	if m.SessionError != nil {
		return nil, m.SessionError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.SessionRecord, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Cleanup removes logs and sessions older than the cutoff
func (m *MockRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.logs)
	m.logs = slices.DeleteFunc(m.logs, func(l database.RecognitionLog) bool { return l.CreatedAt.Before(olderThan) })
	var sessions int64
	for id, s := range m.sessions {
		if s.StartedAt.Before(olderThan) {
			delete(m.sessions, id)
			sessions++
		}
	}
	return int64(before - len(m.logs)), sessions, nil
}

// Stats computes dashboard statistics
func (m *MockRepository) Stats(ctx context.Context, mostActive int) (*database.Stats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &database.Stats{TotalUsers: len(m.users), TotalSessions: len(m.sessions)}
	counts := make(map[string]int)
	for _, u := range m.users {
		st.TotalEmbeddings += len(u.Embeddings)
	}
	for _, l := range m.logs {
		if l.IsMatch {
			counts[l.UserName]++
			st.TotalRecognitions++
		}
	}
	st.AvgEmbeddingsPerUser = database.AverageEmbeddings(st.TotalUsers, st.TotalEmbeddings)
	for name, n := range counts {
		st.MostActiveUsers = append(st.MostActiveUsers, database.UserActivity{Name: name, Recognitions: n})
	}
	sort.Slice(st.MostActiveUsers, func(i, j int) bool {
		a, b := st.MostActiveUsers[i], st.MostActiveUsers[j]
		if a.Recognitions != b.Recognitions {
			return a.Recognitions > b.Recognitions
		}
		return a.Name < b.Name
	})
	if len(st.MostActiveUsers) > mostActive {
		st.MostActiveUsers = st.MostActiveUsers[:mostActive]
	}
	return st, nil
}

// FindSimilarUsers is a brute-force nearest-user search
func (m *MockRepository) FindSimilarUsers(ctx context.Context, embedding []float32, exclude string, limit int) ([]database.SimilarUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.SimilarUser
	for _, u := range m.users {
		if u.Name == exclude || len(u.Embeddings) == 0 {
			continue
		}
		best := -1.0
		for _, e := range u.Embeddings {
			if len(e.Embedding) != len(embedding) {
				continue
			}
			d := facematch.EuclideanDistance(embedding, e.Embedding)
			if best < 0 || d < best {
				best = d
			}
		}
		if best >= 0 {
			out = append(out, database.SimilarUser{Name: u.Name, Distance: best})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op
func (m *MockRepository) Close() error {
	return nil
}
