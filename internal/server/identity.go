package server

import (
	"context"

	"hive/internal/user"
)

// Identity is the authenticated principal attached to a request after the
// gate admits it.
type Identity struct {
	User        *user.User
	Permissions map[user.Permission]bool

	// TokenContextID is set when the presented token was scoped to a
	// single context by the issuer. Empty means unscoped.
	TokenContextID string
}

// HasPermission reports whether the identity carries the permission.
func (id *Identity) HasPermission(perm user.Permission) bool {
	return id.Permissions[perm]
}

type contextKey int

const identityKey contextKey = iota

// withIdentity attaches the identity to the request context.
func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity attached by the gate, or nil for
// requests on exempt paths.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
