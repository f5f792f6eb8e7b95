package enroll

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/metrics"
)

var timeNow = time.Now

// LoadAll replaces the matcher contents with every stored embedding and
// prepares the face index, reusing a persisted index when its metadata still
// matches the repository. It returns the number of embeddings loaded.
func (s *Service) LoadAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.repo.LoadEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading embeddings: %w", err)
	}

	entries := make([]facematch.Entry, 0, len(stored))
	for _, e := range stored {
		entries = append(entries, facematch.Entry{Label: e.UserName, Embedding: e.Embedding})
	}
	if err := s.matcher.Store().Replace(entries); err != nil {
		return 0, fmt.Errorf("loading matcher: %w", err)
	}
	metrics.EnrolledEmbeddings.Set(float64(len(entries)))

	if s.loadCachedIndex(ctx) {
		return len(entries), nil
	}
	if err := s.buildIndex(ctx, stored); err != nil {
		return len(entries), err
	}
	return len(entries), nil
}

// RebuildIndex rebuilds the face index from the repository and persists it.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.repo.LoadEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading embeddings: %w", err)
	}
	if err := s.buildIndex(ctx, stored); err != nil {
		return 0, err
	}
	return s.index.Count(), nil
}

func (s *Service) buildIndex(ctx context.Context, stored []database.StoredEmbedding) error {
	start := timeNow()
	s.index.Build(stored)
	s.logger.Info("face index built", "embeddings", s.index.Count(), "duration", time.Since(start))

	if s.indexPath == "" {
		return nil
	}
	if err := s.saveIndex(ctx); err != nil {
		return fmt.Errorf("saving face index: %w", err)
	}
	return nil
}

// loadCachedIndex loads the persisted index when its metadata is current.
func (s *Service) loadCachedIndex(ctx context.Context) bool {
	if s.indexPath == "" {
		return false
	}
	meta, err := database.LoadFaceIndexMetadata(s.indexPath)
	if err != nil {
		s.logger.Debug("no cached face index", "path", s.indexPath, "error", err)
		return false
	}
	count, maxID, err := s.repo.CountEmbeddings(ctx)
	if err != nil {
		s.logger.Warn("counting embeddings", "error", err)
		return false
	}
	if meta.IsStale(count, maxID) {
		s.logger.Info("cached face index is stale", "cached_count", meta.EmbeddingCount, "count", count)
		return false
	}
	if err := s.index.Load(s.indexPath); err != nil {
		s.logger.Warn("loading cached face index", "error", err)
		return false
	}
	s.logger.Info("face index loaded from cache", "embeddings", s.index.Count(), "built", meta.BuildTime)
	return true
}
