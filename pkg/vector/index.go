// Package vector stores question embeddings and serves nearest-neighbor
// lookups for exemplar retrieval.
package vector

import (
	"context"

	"github.com/google/uuid"
)

// Match is one nearest-neighbor result. Score is cosine similarity in
// [-1, 1]; higher is closer.
type Match struct {
	ID    uuid.UUID
	Score float64
}

// Index is the embedding store. Implementations must keep tenants fully
// isolated: a Query never returns another tenant's vectors.
type Index interface {
	// Upsert stores the embedding under id, replacing any previous vector.
	Upsert(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, embedding []float32) error
	// Query returns up to k nearest neighbors for the tenant, best first.
	Query(ctx context.Context, tenantID uuid.UUID, embedding []float32, k int) ([]Match, error)
	// Delete removes the embedding under id, if present.
	Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error
}
