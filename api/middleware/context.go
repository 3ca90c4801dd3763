package middleware

import "context"

// identity is what Auth learned about the caller. Guests carry none.
type identity struct {
	userID string
	role   string
}

type identityKey struct{}

func identityFrom(ctx context.Context) identity {
	if ctx == nil {
		return identity{}
	}
	id, _ := ctx.Value(identityKey{}).(identity)
	return id
}

func withIdentity(ctx context.Context, fn func(*identity)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := identityFrom(ctx)
	fn(&id)
	return context.WithValue(ctx, identityKey{}, id)
}

// UserIDFromContext returns the authenticated user id, or "" for guests.
func UserIDFromContext(ctx context.Context) string {
	return identityFrom(ctx).userID
}

func RoleFromContext(ctx context.Context) string {
	return identityFrom(ctx).role
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withIdentity(ctx, func(id *identity) { id.role = role })
}
