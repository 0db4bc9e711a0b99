package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/promptgist/promptgist/internal/identity"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationList reports access tokens revoked before their expiry.
type RevocationList interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type firstOf []Verifier

// FirstOf accepts a token when any of vs accepts it, trying them in order.
// Nil verifiers are skipped.
func FirstOf(vs ...Verifier) Verifier {
	out := firstOf{}
	for _, v := range vs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (f firstOf) Verify(ctx context.Context, raw string) (Token, error) {
	err := errors.New("no verifier configured")
	for _, v := range f {
		var tok Token
		if tok, err = v.Verify(ctx, raw); err == nil {
			return tok, nil
		}
	}
	return nil, err
}

// bearerToken reads the Authorization header. WebSocket upgrades may pass
// the token as access_token instead since browsers cannot set headers there.
func bearerToken(c *gin.Context) (string, error) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			if q := c.Query("access_token"); q != "" {
				return q, nil
			}
		}
		return "", errors.New("missing Authorization header")
	}
	var token string
	if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
		return "", errors.New("invalid Authorization header")
	}
	return token, nil
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier.
// Verified claims are stored under "claims" and the caller's identity.User on the request context.
// revoked may be nil.
func AuthMiddleware(ver Verifier, revoked RevocationList) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if revoked != nil {
			bad, err := revoked.IsRevoked(c.Request.Context(), token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "token revocation check failed"})
				return
			}
			if bad {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}

		verified, err := ver.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := verified.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		u, ok := identity.FromClaims(claims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no subject"})
			return
		}

		c.Set("claims", claims)
		c.Set("accessToken", token)
		c.Request = c.Request.WithContext(identity.WithUser(c.Request.Context(), u))
		c.Next()
	}
}

// CORS sets permissive cross-origin headers and answers preflight requests.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
