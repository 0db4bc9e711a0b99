package tokens

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/promptgist/promptgist/internal/identity"
)

var testUser = identity.User{ID: "user-123", Name: "Test User", Email: "test@example.com"}

func TestIssue_ValidAndClaims(t *testing.T) {
	iss := NewIssuer("test-secret-32-bytes-should-be-long-enough", 2*time.Minute)
	tokenStr, err := iss.Issue(testUser)
	require.NoError(t, err)

	tok, err := iss.Verify(context.Background(), tokenStr)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "user-123", claims["sub"])
	require.Equal(t, "Test User", claims["name"])
	require.Equal(t, "promptgist", claims["iss"])

	u, ok := identity.FromClaims(claims)
	require.True(t, ok)
	require.Equal(t, testUser, u)
}

func TestIssue_RequiresSecret(t *testing.T) {
	_, err := NewIssuer("", time.Minute).Issue(testUser)
	require.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	iss := NewIssuer("another-secret-32-bytes-longgggg", time.Second)
	tokenStr, err := iss.Issue(testUser)
	require.NoError(t, err)

	time.Sleep(2 * time.Second)
	_, err = iss.Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_WrongSecretFails(t *testing.T) {
	tokenStr, err := NewIssuer("secret-one-32-bytes-xxxxxxxxxxxxxxxx", time.Minute).Issue(testUser)
	require.NoError(t, err)

	_, err = NewIssuer("different-secret-xxxxxxxxxxxxxxxx", time.Minute).Verify(context.Background(), tokenStr)
	require.Error(t, err)
}

func TestVerify_Malformed(t *testing.T) {
	_, err := NewIssuer("x", time.Minute).Verify(context.Background(), "not.a.jwt")
	require.Error(t, err)
}

// Rejected when alg=none (unsigned token)
func TestVerify_AlgNoneRejected(t *testing.T) {
	headerEnc := new(jwt.Token).EncodeSegment([]byte(`{"alg":"none"}`))
	payloadEnc := new(jwt.Token).EncodeSegment([]byte(`{"sub":"u-none","iss":"promptgist","exp":9999999999}`))
	_, err := NewIssuer("x", time.Minute).Verify(context.Background(), headerEnc+"."+payloadEnc+".")
	require.Error(t, err)
}

func TestVerify_ForeignIssuerRejected(t *testing.T) {
	secret := []byte("shared-secret-xxxxxxxxxxxxxxxxxxxx")
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "someone-else", "sub": "u", "exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)

	_, err = NewIssuer(string(secret), time.Minute).Verify(context.Background(), foreign)
	require.Error(t, err)
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	iss := NewIssuer("tamper-test-secret-32-bytes-xxxxxxx", 5*time.Minute)
	tokenStr, err := iss.Issue(identity.User{ID: "user-t"})
	require.NoError(t, err)

	parts := strings.Split(tokenStr, ".")
	require.Len(t, parts, 3)
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	require.NoError(t, err)
	parts[1] = new(jwt.Token).EncodeSegment([]byte(strings.Replace(string(payload), "user-t", "attacker", 1)))

	_, err = iss.Verify(context.Background(), strings.Join(parts, "."))
	require.Error(t, err)
}

func TestExpiresAt(t *testing.T) {
	iss := NewIssuer("exp-secret-xxxxxxxxxxxxxxxxxxxxxx", 10*time.Minute)
	tokenStr, err := iss.Issue(testUser)
	require.NoError(t, err)

	exp := ExpiresAt(tokenStr)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
	require.True(t, ExpiresAt("garbage").IsZero())
}
