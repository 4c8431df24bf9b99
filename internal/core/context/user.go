// Package context provides request-scoped values extraction.
package context

import (
	"context"

	"factorydesk/internal/core/id"
)

// UserContext describes the authenticated caller.
type UserContext struct {
	UserID      string
	CompanyID   id.ID
	Email       string
	Role        string
	Permissions []string
	// SalesPersonID links a Sales role user to the sales person record.
	SalesPersonID *id.ID
	IsSuperAdmin  bool
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// GetCompanyID returns the caller's company or the zero ID.
func GetCompanyID(ctx context.Context) id.ID {
	if u := GetUser(ctx); u != nil {
		return u.CompanyID
	}
	return id.Nil()
}

// HasPermission reports whether the caller holds perm.
func HasPermission(ctx context.Context, perm string) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	if u.IsSuperAdmin {
		return true
	}
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
