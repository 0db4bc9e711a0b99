package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromClaims(t *testing.T) {
	u, ok := FromClaims(map[string]interface{}{"sub": "u1", "preferred_username": "alice", "email": "a@example.com"})
	require.True(t, ok)
	require.Equal(t, User{ID: "u1", Name: "alice", Email: "a@example.com"}, u)

	_, ok = FromClaims(map[string]interface{}{"email": "x@example.com"})
	require.False(t, ok)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithUser(context.Background(), User{ID: "u2", Name: "Bob"})
	u, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "u2", u.ID)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Bob", User{ID: "1", Name: " Bob "}.DisplayName())
	require.Equal(t, "b@example.com", User{ID: "1", Email: "b@example.com"}.DisplayName())
	require.Equal(t, "Anonymous", User{ID: "1"}.DisplayName())
}
