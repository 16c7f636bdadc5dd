package facematch

import (
	"log/slog"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/reunite/internal/database"
)

// HNSW graph parameters for 512-dim face embeddings
const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16
	// hnswEfSearch is the search candidate pool size.
	hnswEfSearch = 100
)

// GalleryIndex supplies the gallery entries a query should be scored against.
// Implementations may prune; final similarity is always computed exactly.
type GalleryIndex interface {
	Candidates(query []float32) []*database.GalleryEntry
	Len() int
}

// LinearIndex scores every entry. It is exact and the default.
type LinearIndex struct {
	entries []database.GalleryEntry
}

// NewLinearIndex wraps a gallery snapshot.
func NewLinearIndex(entries []database.GalleryEntry) *LinearIndex {
	return &LinearIndex{entries: entries}
}

// Candidates returns every entry.
func (l *LinearIndex) Candidates([]float32) []*database.GalleryEntry {
	out := make([]*database.GalleryEntry, len(l.entries))
	for i := range l.entries {
		out[i] = &l.entries[i]
	}
	return out
}

// Len returns the number of entries.
func (l *LinearIndex) Len() int {
	return len(l.entries)
}

// HNSWIndex narrows the gallery to the k approximate nearest neighbors using an
// in-memory HNSW graph. Entries failing validation are left out of the graph.
type HNSWIndex struct {
	graph *hnsw.Graph[int64]
	byID  map[int64]*database.GalleryEntry
	k     int
}

// NewHNSWIndex builds the graph from a gallery snapshot.
func NewHNSWIndex(entries []database.GalleryEntry, dim, k int, logger *slog.Logger) *HNSWIndex {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.EfSearch = hnswEfSearch
	g.Distance = hnsw.CosineDistance

	idx := &HNSWIndex{graph: g, byID: make(map[int64]*database.GalleryEntry, len(entries)), k: k}
	for i := range entries {
		e := &entries[i]
		if err := ValidateVector(e.Embedding, dim); err != nil {
			if logger != nil {
				logger.Warn("skipping corrupt gallery entry", "entry_id", e.ID, "identity_id", e.IdentityID)
			}
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		idx.byID[e.ID] = e
	}
	return idx
}

// Candidates returns up to k nearest entries.
func (h *HNSWIndex) Candidates(query []float32) []*database.GalleryEntry {
	if len(h.byID) == 0 || len(query) != h.graph.Dims() {
		return nil
	}
	neighbors := h.graph.Search(query, h.k)
	out := make([]*database.GalleryEntry, 0, len(neighbors))
	for _, n := range neighbors {
		if e, ok := h.byID[n.Key]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of indexed entries.
func (h *HNSWIndex) Len() int {
	return len(h.byID)
}
