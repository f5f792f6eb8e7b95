// Package enroll manages enrolled users: capturing samples into embeddings,
// persisting them and keeping the recognition matcher and the HNSW face index
// in step with the repository.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/detectcache"
	"github.com/kozaktomas/facewatch/internal/detector"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

var (
	// ErrNoFace is returned when none of the enrollment samples contains a face.
	ErrNoFace = errors.New("no face found in any sample")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid enrollment request")
)

var validate = validator.New()

// Request describes one enrollment.
type Request struct {
	Name    string        `validate:"required,max=100"`
	Samples []image.Image `validate:"required,min=1,max=50"`
	Replace bool
}

// Progress is called after each sample with the number of samples handled so far.
type Progress func(done, total int)

// Report is the result of a successful enrollment.
type Report struct {
	User     *database.User `json:"user"`
	Samples  int            `json:"samples"`
	Skipped  int            `json:"skipped"`
	Replaced bool           `json:"replaced"`
	// Warnings name other users a sample is within tolerance of.
	Warnings []string `json:"warnings,omitempty"`
}

// Service owns every mutation of the enrolled set. Storage, matcher and index
// updates are serialized by one lock.
type Service struct {
	repo      database.UserWriter
	engine    detector.Engine
	detect    detectcache.DetectFunc
	matcher   *facematch.Matcher
	index     *database.FaceIndex
	indexPath string
	jitters   int
	logger    *slog.Logger

	mu sync.Mutex
}

// Deps are the collaborators of a Service. Index and IndexPath are optional.
type Deps struct {
	Repo      database.UserWriter
	Engine    detector.Engine
	Matcher   *facematch.Matcher
	Index     *database.FaceIndex
	IndexPath string
	Jitters   int
	Logger    *slog.Logger
}

func NewService(deps Deps) *Service {
	index := deps.Index
	if index == nil {
		index = database.NewFaceIndex()
	}
	return &Service{
		repo:      deps.Repo,
		engine:    deps.Engine,
		detect:    detectcache.Downscaled(deps.Engine, deps.Engine.DetectionWidth()),
		matcher:   deps.Matcher,
		index:     index,
		indexPath: deps.IndexPath,
		jitters:   deps.Jitters,
		logger:    logging.OrDefault(deps.Logger),
	}
}

// Matcher returns the matcher kept in step with the repository.
func (s *Service) Matcher() *facematch.Matcher {
	return s.matcher
}

// Enroll embeds the largest face of every sample and stores the user.
// Samples without a face are skipped; if none has a face ErrNoFace is returned.
// An existing user with the same normalized name is rejected with
// database.ErrUserExists unless req.Replace is set.
func (s *Service) Enroll(ctx context.Context, req Request, progress Progress) (*Report, error) {
	req.Name = facematch.CleanLabel(req.Name)
	if err := validate.Struct(req); err != nil {
		if req.Name == "" {
			return nil, facematch.ErrEmptyLabel
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	name, existing, err := s.resolveName(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	if existing && !req.Replace {
		return nil, fmt.Errorf("%w: %s", database.ErrUserExists, name)
	}

	embeddings := make([][]float32, 0, len(req.Samples))
	skipped := 0
	for i, sample := range req.Samples {
		emb, err := s.embedLargest(ctx, sample)
		switch {
		case errors.Is(err, ErrNoFace):
			skipped++
		case err != nil:
			return nil, fmt.Errorf("sample %d: %w", i+1, err)
		default:
			embeddings = append(embeddings, emb)
		}
		if progress != nil {
			progress(i+1, len(req.Samples))
		}
	}
	if len(embeddings) == 0 {
		return nil, ErrNoFace
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkEmbeddings(name, embeddings, existing); err != nil {
		return nil, err
	}

	report := &Report{Samples: len(embeddings), Skipped: skipped, Replaced: existing}
	report.Warnings = s.duplicateWarnings(embeddings, name)

	var oldIDs []int64
	if existing {
		if old, err := s.repo.GetUser(ctx, name); err == nil {
			for _, e := range old.Embeddings {
				oldIDs = append(oldIDs, e.ID)
			}
		}
	}

	user, err := s.repo.SaveUser(ctx, name, embeddings, req.Replace)
	if err != nil {
		return nil, fmt.Errorf("saving user %s: %w", name, err)
	}
	report.User = user

	store := s.matcher.Store()
	if existing {
		store.RemoveAll(name)
		s.index.Delete(oldIDs...)
	}
	for _, e := range user.Embeddings {
		if err := store.Add(name, e.Embedding); err != nil {
			return nil, fmt.Errorf("adding %s to matcher: %w", name, err)
		}
		s.index.Add(e)
	}
	s.afterMutation(ctx)

	s.logger.Info("user enrolled", "user", name, "samples", report.Samples,
		"skipped", skipped, "replaced", existing, "warnings", len(report.Warnings))
	return report, nil
}

// checkEmbeddings verifies that embeddings can all join the matcher store.
// When replacing the only enrolled user the store empties first, so any
// dimension is accepted as long as the samples agree. Caller holds s.mu.
func (s *Service) checkEmbeddings(name string, embeddings [][]float32, replacing bool) error {
	store := s.matcher.Store()
	dim := store.Dim()
	if replacing && store.Count(name) == store.Len() {
		dim = 0
	}
	for i, emb := range embeddings {
		if err := facematch.ValidateEmbedding(emb, dim); err != nil {
			return fmt.Errorf("embedding %d of %s: %w", i+1, name, err)
		}
		if dim == 0 {
			dim = len(emb)
		}
	}
	return nil
}

// resolveName finds an enrolled user whose name normalizes like name.
// It returns the stored spelling when one exists.
func (s *Service) resolveName(ctx context.Context, name string) (string, bool, error) {
	ok, err := s.repo.UserExists(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("checking user %s: %w", name, err)
	}
	if ok {
		return name, true, nil
	}

	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listing users: %w", err)
	}
	key := facematch.LabelKey(name)
	for _, u := range users {
		if facematch.LabelKey(u.Name) == key {
			return u.Name, true, nil
		}
	}
	return name, false, nil
}

// embedLargest detects faces in img and embeds the biggest one.
func (s *Service) embedLargest(ctx context.Context, img image.Image) ([]float32, error) {
	boxes, err := s.detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	i := facematch.Largest(boxes)
	if i < 0 {
		return nil, ErrNoFace
	}
	embs, err := s.engine.Embed(ctx, img, boxes[i:i+1], s.jitters)
	if err != nil {
		return nil, fmt.Errorf("extracting embedding: %w", err)
	}
	if len(embs) != 1 || len(embs[0]) == 0 {
		return nil, fmt.Errorf("embedder returned %d embeddings for one face", len(embs))
	}
	return embs[0], nil
}

// duplicateWarnings reports other users that a new sample lies within tolerance of.
func (s *Service) duplicateWarnings(embeddings [][]float32, name string) []string {
	tolerance := s.matcher.Tolerance()
	var names []string
	for _, emb := range embeddings {
		similar, err := s.index.SimilarUsers(emb, name, 1)
		if err != nil || len(similar) == 0 || similar[0].Distance > tolerance {
			continue
		}
		if !slices.Contains(names, similar[0].Name) {
			names = append(names, similar[0].Name)
		}
	}

	warnings := make([]string, 0, len(names))
	for _, n := range names {
		warnings = append(warnings, fmt.Sprintf("sample resembles enrolled user %q", n))
	}
	return warnings
}

// Delete removes a user and all of its embeddings. It returns the number of
// embeddings removed.
func (s *Service) Delete(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.repo.DeleteUser(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("deleting user %s: %w", name, err)
	}
	s.matcher.Store().RemoveAll(name)
	s.index.Delete(ids...)
	s.afterMutation(ctx)

	s.logger.Info("user deleted", "user", name, "embeddings", len(ids))
	return len(ids), nil
}

// DeleteOne removes the oldest sample of a user. The user disappears with its last sample.
func (s *Service) DeleteOne(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.repo.DeleteOldestEmbedding(ctx, name)
	if err != nil {
		return fmt.Errorf("deleting sample of %s: %w", name, err)
	}
	s.matcher.Store().RemoveOne(name)
	s.index.Delete(id)
	s.afterMutation(ctx)

	s.logger.Info("user sample deleted", "user", name, "embedding_id", id)
	return nil
}

// afterMutation refreshes the gauge and persists the index. Persistence
// failures are logged; the in-memory state stays authoritative.
func (s *Service) afterMutation(ctx context.Context) {
	metrics.EnrolledEmbeddings.Set(float64(s.matcher.Store().Len()))
	if s.indexPath == "" {
		return
	}
	if err := s.saveIndex(ctx); err != nil {
		s.logger.Warn("saving face index", "path", s.indexPath, "error", err)
	}
}

func (s *Service) saveIndex(ctx context.Context) error {
	count, maxID, err := s.repo.CountEmbeddings(ctx)
	if err != nil {
		return err
	}
	return s.index.Save(s.indexPath, database.FaceIndexMetadata{
		EmbeddingCount: count,
		MaxEmbeddingID: maxID,
		BuildTime:      timeNow(),
	})
}
