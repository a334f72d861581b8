package auth

import (
	"context"
	"log/slog"
)

// Identity is the request-scoped authorization context: the verified user
// and the raw credential that downstream calls are made with. It travels
// only through context values, never through package-level state, so one
// request can never observe another's credential.
type Identity struct {
	// UserID is the verified subject of the credential.
	UserID string

	// Token is the raw bearer credential, forwarded verbatim to the
	// task service. It must never be logged or placed in model-visible
	// content.
	Token string
}

// LogValue keeps the credential out of log output.
func (id *Identity) LogValue() slog.Value {
	if id == nil {
		return slog.StringValue("")
	}
	return slog.GroupValue(slog.String("user_id", id.UserID))
}

type identityContextKey struct{}

// WithIdentity attaches an identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	if id == nil {
		return ctx
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}
