// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// UserContext contains the authenticated actor.
// UserID is recorded as actor_id on every ledger entry the request produces.
type UserContext struct {
	UserID      string
	Email       string
	Roles       []string
	Permissions []string
	IsAdmin     bool
}

type userContextKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns the authenticated user, or nil for anonymous work.
func GetUser(ctx context.Context) *UserContext {
	u, _ := ctx.Value(userContextKey{}).(*UserContext)
	return u
}

// GetUserID returns the actor ID in ctx, or "".
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// HasPermission reports whether the user in ctx holds permission.
// Admins hold every permission.
func HasPermission(ctx context.Context, permission string) bool {
	u := GetUser(ctx)
	return u != nil && (u.IsAdmin || slices.Contains(u.Permissions, permission))
}
