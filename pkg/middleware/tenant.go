package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScopeProvider opens a tenant-scoped database context for a request.
// database.TenantScopeProvider satisfies this via Go's implicit interfaces.
type ScopeProvider interface {
	WithTenantScope(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error)
}

// TenantScope returns middleware that reads the {tid} path value, opens a
// tenant-scoped database context for it, and releases the scope when the
// handler returns. Handlers behind it can assume a scope is present.
func TenantScope(provider ScopeProvider, logger *zap.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			tenantID, err := uuid.Parse(r.PathValue("tid"))
			if err != nil {
				http.Error(w, "invalid tenant ID", http.StatusBadRequest)
				return
			}

			tenantCtx, cleanup, err := provider.WithTenantScope(r.Context(), tenantID)
			if err != nil {
				logger.Error("Failed to establish tenant scope",
					zap.String("tenant_id", tenantID.String()),
					zap.Error(err))
				http.Error(w, "failed to establish tenant scope", http.StatusInternalServerError)
				return
			}
			defer cleanup()

			next(w, r.WithContext(tenantCtx))
		}
	}
}
