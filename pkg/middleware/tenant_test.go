package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/database"
)

type stubScopeProvider struct {
	err      error
	tenantID uuid.UUID
	cleaned  bool
}

func (s *stubScopeProvider) WithTenantScope(ctx context.Context, tenantID uuid.UUID) (context.Context, func(), error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	s.tenantID = tenantID
	scoped := database.SetTenantScope(ctx, &database.TenantScope{TenantID: tenantID})
	return scoped, func() { s.cleaned = true }, nil
}

func TestTenantScope_EstablishesScope(t *testing.T) {
	provider := &stubScopeProvider{}
	tenantID := uuid.New()

	var sawScope bool
	handler := TenantScope(provider, zap.NewNop())(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := database.GetTenantScope(r.Context())
		sawScope = ok && scope.TenantID == tenantID
		w.WriteHeader(http.StatusOK)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tenants/{tid}/answers", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/"+tenantID.String()+"/answers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if !sawScope {
		t.Error("expected tenant scope in handler context")
	}
	if provider.tenantID != tenantID {
		t.Errorf("expected provider called with %s, got %s", tenantID, provider.tenantID)
	}
	if !provider.cleaned {
		t.Error("expected scope cleanup to run")
	}
}

func TestTenantScope_InvalidTenantID(t *testing.T) {
	provider := &stubScopeProvider{}
	called := false
	handler := TenantScope(provider, zap.NewNop())(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tenants/{tid}/answers", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/not-a-uuid/answers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if called {
		t.Error("expected handler not to run")
	}
}

func TestTenantScope_ProviderFailure(t *testing.T) {
	provider := &stubScopeProvider{err: context.DeadlineExceeded}
	handler := TenantScope(provider, zap.NewNop())(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a scope")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tenants/{tid}/answers", handler)

	req := httptest.NewRequest(http.MethodGet, "/api/tenants/"+uuid.NewString()+"/answers", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}
