package enroll

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"image"
	"slices"

	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// Match is a positive recognition of one face in a still image.
type Match struct {
	Name       string        `json:"name"`
	Confidence float64       `json:"confidence"`
	Box        facematch.Box `json:"box"`
}

// Identification is the outcome of recognizing every face in a still image.
// Unknown faces count towards FacesDetected but are not listed in Matches.
type Identification struct {
	FacesDetected int                `json:"faces_detected"`
	Matches       []Match            `json:"matches"`
	Boxes         []facematch.Box    `json:"-"`
	Results       []facematch.Result `json:"-"`
}

// Identify detects, embeds and matches every face in img.
func (s *Service) Identify(ctx context.Context, img image.Image) (*Identification, error) {
	boxes, err := s.detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}
	out := &Identification{FacesDetected: len(boxes), Matches: []Match{}, Boxes: boxes}
	if len(boxes) == 0 {
		return out, nil
	}

	embeddings, err := s.engine.Embed(ctx, img, boxes, s.jitters)
	if err != nil {
		return nil, fmt.Errorf("extracting embeddings: %w", err)
	}
	results, err := s.matcher.Recognize(embeddings)
	if err != nil {
		return nil, fmt.Errorf("matching faces: %w", err)
	}
	out.Results = results

	for i, r := range results {
		if r.IsMatch && i < len(boxes) {
			out.Matches = append(out.Matches, Match{Name: r.Label, Confidence: r.Confidence, Box: boxes[i]})
		}
	}
	return out, nil
}

// SimilarUsers returns the users whose embeddings lie closest to any embedding
// of name, nearest first. Backends with native vector search are preferred
// over the in-memory index.
func (s *Service) SimilarUsers(ctx context.Context, name string, limit int) ([]database.SimilarUser, error) {
	user, err := s.repo.GetUser(ctx, name)
	if err != nil {
		return nil, err
	}

	finder, native := s.repo.(database.SimilarFinder)
	best := make(map[string]float64)
	for _, e := range user.Embeddings {
		var found []database.SimilarUser
		if native {
			found, err = finder.FindSimilarUsers(ctx, e.Embedding, user.Name, limit)
		} else {
			found, err = s.index.SimilarUsers(e.Embedding, user.Name, limit)
		}
		if errors.Is(err, database.ErrIndexNotInitialized) {
			return []database.SimilarUser{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding users similar to %s: %w", name, err)
		}
		for _, f := range found {
			if d, ok := best[f.Name]; !ok || f.Distance < d {
				best[f.Name] = f.Distance
			}
		}
	}

	out := make([]database.SimilarUser, 0, len(best))
	for n, d := range best {
		out = append(out, database.SimilarUser{Name: n, Distance: d})
	}
	slices.SortFunc(out, func(a, b database.SimilarUser) int {
		return cmp.Or(cmp.Compare(a.Distance, b.Distance), cmp.Compare(a.Name, b.Name))
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
