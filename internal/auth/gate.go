package auth

import (
	"context"
	"strings"
)

// Authorize turns the raw Authorization header into a verified identity.
func (t *Tokens) Authorize(header string) (Identity, error) {
	if header == "" {
		return Identity{}, ErrMissingToken
	}
	return t.Validate(strings.TrimPrefix(header, "Bearer "))
}

type contextKey struct{}

// WithIdentity attaches id to ctx for the lifetime of one request.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
