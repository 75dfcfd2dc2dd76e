// Package auth resolves the requesting tenant. Real authentication
// lives in the platform gateway; this service only trusts the tenant
// header the gateway injects and scopes every query to it.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const tenantKey contextKey = "tenant_id"

// TenantHeader is set by the platform gateway after authentication.
const TenantHeader = "X-Tenant-ID"

// Middleware extracts the tenant id from the request header and stores
// it in the request context. Requests without a valid tenant are
// rejected; the core never queries across tenants.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, err := uuid.Parse(r.Header.Get(TenantHeader))
		if err != nil || tenantID == uuid.Nil {
			http.Error(w, "missing or invalid tenant", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TenantID returns the tenant id stored by Middleware, or uuid.Nil if
// the request was not authenticated.
func TenantID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(tenantKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
