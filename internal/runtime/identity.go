package runtime

import (
	"context"

	configpkg "github.com/drblury/portalflow/internal/runtime/config"
)

// Identity is the caller principal a portal call runs under. The zero value
// is anonymous. Identity travels explicitly through context and envelopes;
// there is no ambient thread-local state.
type Identity struct {
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	HostManaged bool     `json:"host_managed,omitempty"`
}

// HostManagedIdentity returns the sentinel identity used when the
// Authentication mode delegates credentials to the host.
func HostManagedIdentity() Identity {
	return Identity{HostManaged: true}
}

// IsAnonymous reports whether the identity names no principal and is not
// host-managed.
func (i Identity) IsAnonymous() bool {
	return !i.HostManaged && i.Name == ""
}

// HasRole reports whether the identity carries the named role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// WithIdentity returns a context carrying the caller identity for portal
// calls.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the caller identity from ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}

// resolveIdentity picks the identity for one portal call. With host-managed
// credentials the sentinel is returned and no principal is forwarded;
// otherwise the current caller identity in ctx applies. Resolved fresh per
// call, never cached: the caller may differ between invocations in a
// multi-tenant host.
func resolveIdentity(ctx context.Context, conf *configpkg.Config) Identity {
	if conf != nil && conf.HostManagedCredentials() {
		return HostManagedIdentity()
	}
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity
	}
	return Identity{}
}
