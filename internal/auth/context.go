package auth

import "context"

type identityContextKey struct{}
type elevatedContextKey struct{}

// Identity is the resolved caller: the freshly loaded user record plus the
// claims of the session token that identified it.
type Identity struct {
	User   *User
	Claims *SessionClaims
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.User != nil && i.User.Role == RoleAdmin
}

// ContextWithIdentity attaches the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &identity)
}

// IdentityFromContext extracts the resolved identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil || v.User == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithElevated stores verified elevated-session claims in the context
// so handlers can reach the original issuance time for logging.
func ContextWithElevated(ctx context.Context, claims *ElevatedClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, elevatedContextKey{}, claims)
}

// ElevatedFromContext returns the elevated-session claims if present.
func ElevatedFromContext(ctx context.Context) (*ElevatedClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(elevatedContextKey{}).(*ElevatedClaims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
