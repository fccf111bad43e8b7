package shared

import "context"

type tenantContextKey struct{}

// Tenant identifies the authenticated company and actor for a request.
// Authentication happens upstream; the gateway forwards the resolved
// identity in headers that the middleware stores here.
type Tenant struct {
	CompanyID int64
	ActorID   int64
}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext extracts the tenant from context. The zero value
// means the request carried no identity.
func TenantFromContext(ctx context.Context) Tenant {
	t, _ := ctx.Value(tenantContextKey{}).(Tenant)
	return t
}
