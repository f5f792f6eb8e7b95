package facematch

import (
	"fmt"
	"math"
	"strings"
	"sync"
)

// Store is the in-memory list of known embeddings.
// Reads and mutations are guarded by a read-write lock so enrollment can run
// while a recognition session is matching frames.
type Store struct {
	mu      sync.RWMutex
	entries []Entry
	dim     int
}

func NewStore() *Store {
	return &Store{}
}

// ValidateEmbedding rejects empty or non-finite embeddings. A non-zero dim also
// requires exactly dim components.
func ValidateEmbedding(emb Embedding, dim int) error {
	if len(emb) == 0 {
		return ErrEmptyEmbedding
	}
	if dim != 0 && len(emb) != dim {
		return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(emb), dim)
	}
	for i, v := range emb {
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidEmbedding, i, v)
		}
	}
	return nil
}

func validateEntry(label string, emb Embedding, dim int) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrEmptyLabel
	}
	if err := ValidateEmbedding(emb, dim); err != nil {
		return "", err
	}
	return label, nil
}

// Add appends one embedding for label. The label is trimmed.
func (s *Store) Add(label string, emb Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	label, err := validateEntry(label, emb, s.dim)
	if err != nil {
		return err
	}
	if s.dim == 0 {
		s.dim = len(emb)
	}
	s.entries = append(s.entries, Entry{Label: label, Embedding: append(Embedding(nil), emb...)})
	return nil
}

// RemoveOne removes the first entry for label. It reports whether an entry was removed.
func (s *Store) RemoveOne(label string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.Label == label {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.resetDimIfEmpty()
			return true
		}
	}
	return false
}

// RemoveAll removes every entry for label and returns how many were removed.
func (s *Store) RemoveAll(label string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Label == label {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept
	s.resetDimIfEmpty()
	return removed
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.dim = 0
}

// Replace swaps the whole store for entries (bulk load). Nothing changes on error.
func (s *Store) Replace(entries []Entry) error {
	next := make([]Entry, 0, len(entries))
	dim := 0
	for i, e := range entries {
		label, err := validateEntry(e.Label, e.Embedding, dim)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if dim == 0 {
			dim = len(e.Embedding)
		}
		next = append(next, Entry{Label: label, Embedding: append(Embedding(nil), e.Embedding...)})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = next
	s.dim = dim
	return nil
}

func (s *Store) resetDimIfEmpty() {
	if len(s.entries) == 0 {
		s.dim = 0
	}
}

// Len returns the number of stored embeddings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dim returns the embedding dimension, or 0 for an empty store.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Count returns the number of embeddings stored for label.
func (s *Store) Count(label string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if e.Label == label {
			n++
		}
	}
	return n
}

// Labels returns the distinct labels in insertion order.
func (s *Store) Labels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.entries))
	labels := make([]string, 0)
	for _, e := range s.entries {
		if _, ok := seen[e.Label]; ok {
			continue
		}
		seen[e.Label] = struct{}{}
		labels = append(labels, e.Label)
	}
	return labels
}

// match computes one result per query against a consistent view of the store.
// Ties keep the lowest index.
func (s *Store) match(queries []Embedding, tolerance float64) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for qi, q := range queries {
		if err := ValidateEmbedding(q, s.dim); err != nil {
			return nil, fmt.Errorf("query %d: %w", qi, err)
		}
	}

	results := make([]Result, len(queries))
	if len(s.entries) == 0 {
		for i := range results {
			results[i] = unknownResult()
		}
		return results, nil
	}

	for qi, q := range queries {
		best := -1
		bestDist := math.Inf(1)
		for i, e := range s.entries {
			if d := EuclideanDistance(q, e.Embedding); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			results[qi] = unknownResult()
			continue
		}

		results[qi] = Result{
			Label:      s.entries[best].Label,
			Confidence: Confidence(bestDist),
			IsMatch:    bestDist <= tolerance,
			Distance:   bestDist,
		}
	}
	return results, nil
}
