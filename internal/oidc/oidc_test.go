package oidc

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func unsigned(claims jwt.MapClaims) string {
	s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant"))
	return s
}

func TestInsecureVerifier_Claims(t *testing.T) {
	raw := unsigned(jwt.MapClaims{"sub": "dev-1", "email": "dev@example.com"})

	claims, err := Claims(context.Background(), NewInsecureVerifier(), raw)
	require.NoError(t, err)
	require.Equal(t, "dev-1", claims["sub"])
	require.Equal(t, "dev@example.com", claims["email"])
}

func TestInsecureVerifier_Rejects(t *testing.T) {
	v := NewInsecureVerifier()
	_, err := v.Verify(context.Background(), "garbage")
	require.Error(t, err)

	_, err = v.Verify(context.Background(), unsigned(jwt.MapClaims{"email": "x@example.com"}))
	require.Error(t, err)
}
