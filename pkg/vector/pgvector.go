package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cubelens/cubelens-engine/pkg/apperrors"
	"github.com/cubelens/cubelens-engine/pkg/database"
)

// pgvectorIndex stores embeddings in the engine database using the pgvector
// extension. Queries use cosine distance; the matching ivfflat index is
// created by migrations.
type pgvectorIndex struct{}

// NewPgvectorIndex creates an Index backed by the tenant-scoped database
// connection in context.
func NewPgvectorIndex() Index {
	return &pgvectorIndex{}
}

var _ Index = (*pgvectorIndex)(nil)

func (i *pgvectorIndex) Upsert(ctx context.Context, id uuid.UUID, tenantID uuid.UUID, embedding []float32) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if len(embedding) == 0 {
		return fmt.Errorf("embedding must not be empty")
	}

	query := `
		INSERT INTO engine_query_embeddings (id, tenant_id, embedding)
		VALUES ($1, $2, $3::vector)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`

	_, err := scope.Conn.Exec(ctx, query, id, tenantID, formatVector(embedding))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	return nil
}

func (i *pgvectorIndex) Query(ctx context.Context, tenantID uuid.UUID, embedding []float32, k int) ([]Match, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	if k <= 0 {
		return nil, nil
	}

	// <=> is cosine distance; similarity = 1 - distance.
	query := `
		SELECT id, 1 - (embedding <=> $2::vector) AS score
		FROM engine_query_embeddings
		WHERE tenant_id = $1
		ORDER BY embedding <=> $2::vector
		LIMIT $3`

	rows, err := scope.Conn.Query(ctx, query, tenantID, formatVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan embedding match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating embedding matches: %w", err)
	}

	return matches, nil
}

func (i *pgvectorIndex) Delete(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	_, err := scope.Conn.Exec(ctx,
		`DELETE FROM engine_query_embeddings WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}

	return nil
}

// formatVector renders an embedding as a pgvector literal, e.g. "[0.1,0.2]".
func formatVector(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
