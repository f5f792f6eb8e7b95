package database

import (
	"bytes"
	"cmp"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/facewatch/internal/facematch"
)

// FaceIndexMetadata stores metadata for validating cached face indexes.
type FaceIndexMetadata struct {
	EmbeddingCount int64     `json:"embedding_count"`
	MaxEmbeddingID int64     `json:"max_embedding_id"`
	BuildTime      time.Time `json:"build_time"`
	Version        int       `json:"version"` // For future compatibility
}

const faceIndexMetadataVersion = 1

// ErrIndexNotInitialized is returned by searches on an index with no graph.
var ErrIndexNotInitialized = errors.New("index not initialized")

// Neighbor is one search hit.
type Neighbor struct {
	EmbeddingID int64
	UserName    string
	Distance    float64
}

// FaceIndex wraps an HNSW graph over enrolled embeddings using Euclidean distance.
// Nodes are keyed by embedding ID and labelled with the owning user.
type FaceIndex struct {
	graph  *hnsw.Graph[int64]
	labels map[int64]string // embedding ID -> user name; absent IDs are deleted
	mu     sync.RWMutex
}

// NewFaceIndex creates a new empty face index.
func NewFaceIndex() *FaceIndex {
	return &FaceIndex{
		labels: make(map[int64]string),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with the given embeddings.
func (h *FaceIndex) Build(embeddings []StoredEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.labels = make(map[int64]string, len(embeddings))
	if len(embeddings) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embeddings {
		e := &embeddings[i]
		if len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		h.labels[e.ID] = e.UserName
	}
	h.graph = g
}

// Add adds a single embedding to the index.
func (h *FaceIndex) Add(e StoredEmbedding) {
	if len(e.Embedding) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(e.ID, e.Embedding))
	h.labels[e.ID] = e.UserName
}

// Delete removes an embedding from search results.
func (h *FaceIndex) Delete(ids ...int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The graph keeps the node; searches filter by label lookup.
	for _, id := range ids {
		delete(h.labels, id)
	}
}

// Search finds up to k nearest live embeddings to the query, nearest first.
func (h *FaceIndex) Search(query []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, ErrIndexNotInitialized
	}
	if k <= 0 || len(h.labels) == 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k*HNSWSearchMultiplier)
	out := make([]Neighbor, 0, min(k, len(nodes)))
	for _, n := range nodes {
		name, ok := h.labels[n.Key]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			EmbeddingID: n.Key,
			UserName:    name,
			Distance:    facematch.EuclideanDistance(query, facematch.Embedding(n.Value)),
		})
	}
	slices.SortStableFunc(out, func(a, b Neighbor) int { return cmp.Compare(a.Distance, b.Distance) })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// SimilarUsers returns the nearest users other than exclude, one entry per user
// carrying its closest embedding distance.
func (h *FaceIndex) SimilarUsers(query []float32, exclude string, limit int) ([]SimilarUser, error) {
	neighbors, err := h.Search(query, limit*HNSWSearchMultiplier+h.countOf(exclude))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []SimilarUser
	for _, n := range neighbors {
		if n.UserName == exclude || seen[n.UserName] {
			continue
		}
		seen[n.UserName] = true
		out = append(out, SimilarUser{Name: n.UserName, Distance: n.Distance})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (h *FaceIndex) countOf(name string) int {
	if name == "" {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, label := range h.labels {
		if label == name {
			n++
		}
	}
	return n
}

// Count returns the number of live embeddings.
func (h *FaceIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.labels)
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *FaceIndex) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil
}

// Save persists the graph, its labels and metadata for staleness detection.
func (h *FaceIndex) Save(path string, metadata FaceIndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".labels")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create face index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to export face graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close face index file: %w", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.labels); err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	if err := os.WriteFile(path+".labels", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write labels file: %w", err)
	}

	metadata.Version = faceIndexMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadFaceIndexMetadata loads metadata from a separate .meta file.
func LoadFaceIndexMetadata(path string) (FaceIndexMetadata, error) {
	var metadata FaceIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// Load reads the graph and labels written by Save.
func (h *FaceIndex) Load(path string) error {
	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return fmt.Errorf("failed to load face index: %w", err)
	}

	data, err := os.ReadFile(path + ".labels") //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to read labels file: %w", err)
	}
	var labels map[int64]string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&labels); err != nil {
		return fmt.Errorf("failed to decode labels: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = saved.Graph
	h.labels = labels
	return nil
}

// IsStale reports whether cached metadata no longer matches the stored embeddings.
func (m FaceIndexMetadata) IsStale(count, maxID int64) bool {
	return m.Version != faceIndexMetadataVersion || m.EmbeddingCount != count || m.MaxEmbeddingID != maxID
}
