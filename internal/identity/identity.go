// Package identity carries the signed-in user through request handling.
//
// The auth middleware resolves verified token claims into a User once per
// request and stores it on the request context; services read it back with
// FromContext instead of consulting any process-wide session state.
package identity

import (
	"context"
	"strings"
)

// User is the identity of the caller as seen by document operations.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// DisplayName is the label attached to comments and thread messages.
func (u User) DisplayName() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	if e := strings.TrimSpace(u.Email); e != "" {
		return e
	}
	return "Anonymous"
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by WithUser.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	if !ok || u.ID == "" {
		return User{}, false
	}
	return u, true
}

// FromClaims maps OIDC / access token claims onto a User. The subject claim
// is required; name falls back to preferred_username.
func FromClaims(claims map[string]interface{}) (User, bool) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return User{}, false
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name, _ = claims["preferred_username"].(string)
	}
	email, _ := claims["email"].(string)
	return User{ID: sub, Name: name, Email: email}, true
}
