package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryIndex is an in-process Index for tests and single-node development.
// Lookups are a linear scan, which is fine at test scale.
type MemoryIndex struct {
	mu      sync.RWMutex
	vectors map[uuid.UUID]memoryEntry
}

type memoryEntry struct {
	tenantID  uuid.UUID
	embedding []float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vectors: make(map[uuid.UUID]memoryEntry)}
}

var _ Index = (*MemoryIndex)(nil)

func (idx *MemoryIndex) Upsert(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, embedding []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	stored := make([]float32, len(embedding))
	copy(stored, embedding)
	idx.vectors[id] = memoryEntry{tenantID: tenantID, embedding: stored}
	return nil
}

func (idx *MemoryIndex) Query(ctx context.Context, tenantID uuid.UUID, embedding []float32, k int) ([]Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 {
		return nil, nil
	}

	var matches []Match
	for id, entry := range idx.vectors {
		if entry.tenantID != tenantID {
			continue
		}
		matches = append(matches, Match{ID: id, Score: cosineSimilarity(embedding, entry.embedding)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (idx *MemoryIndex) Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if entry, ok := idx.vectors[id]; ok && entry.tenantID == tenantID {
		delete(idx.vectors, id)
	}
	return nil
}

// Len reports the number of stored vectors across all tenants.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
