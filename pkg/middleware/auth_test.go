package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/internal/sessions"
)

// fakeToken implements Token
type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

// fakeVerifier accepts exactly one token
type fakeVerifier struct {
	good string
	sub  string
}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == f.good {
		return &fakeToken{data: map[string]interface{}{"sub": f.sub, "email": "test@example.com", "name": "Test"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func goodVerifier() *fakeVerifier { return &fakeVerifier{good: "goodtoken", sub: "user1"} }

func serve(g *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_NoHeader(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(goodVerifier(), nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	rw := serve(g, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rw.Code)
}

func TestAuthMiddleware_InvalidHeader(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(goodVerifier(), nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "BadHeader")
	require.Equal(t, http.StatusUnauthorized, serve(g, req).Code)
}

func TestAuthMiddleware_ValidTokenSetsIdentity(t *testing.T) {
	g := gin.New()
	g.GET("/", AuthMiddleware(goodVerifier(), nil), func(c *gin.Context) {
		claims, ok := c.Get("claims")
		require.True(t, ok)
		u, ok := identity.FromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"claims": claims, "user": u})
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer goodtoken")
	rw := serve(g, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var got struct {
		Claims map[string]interface{} `json:"claims"`
		User   identity.User          `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Equal(t, "user1", got.Claims["sub"])
	require.Equal(t, identity.User{ID: "user1", Name: "Test", Email: "test@example.com"}, got.User)
}

func TestAuthMiddleware_QueryTokenOnlyForUpgrade(t *testing.T) {
	g := gin.New()
	g.GET("/live", AuthMiddleware(goodVerifier(), nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	plain := httptest.NewRequest(http.MethodGet, "/live?access_token=goodtoken", nil)
	require.Equal(t, http.StatusUnauthorized, serve(g, plain).Code)

	upgrade := httptest.NewRequest(http.MethodGet, "/live?access_token=goodtoken", nil)
	upgrade.Header.Set("Upgrade", "websocket")
	require.Equal(t, http.StatusOK, serve(g, upgrade).Code)
}

func TestAuthMiddleware_RejectsBlacklistedToken(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))

	token := "black-token"
	require.NoError(t, bl.Revoke(context.Background(), token, 5*time.Second))

	g := gin.New()
	ver := &fakeVerifier{good: token, sub: "user1"}
	g.GET("/", AuthMiddleware(ver, bl), func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, serve(g, req).Code)
}

func TestFirstOf(t *testing.T) {
	ver := FirstOf(nil, &fakeVerifier{good: "a", sub: "ua"}, &fakeVerifier{good: "b", sub: "ub"})

	tok, err := ver.Verify(context.Background(), "b")
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	require.Equal(t, "ub", claims["sub"])

	_, err = ver.Verify(context.Background(), "c")
	require.Error(t, err)

	_, err = FirstOf().Verify(context.Background(), "a")
	require.Error(t, err)
}

func TestCORS(t *testing.T) {
	g := gin.New()
	g.Use(CORS())
	g.POST("/x", func(c *gin.Context) { c.Status(http.StatusCreated) })

	pre := httptest.NewRequest(http.MethodOptions, "/x", nil)
	rw := serve(g, pre)
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "*", rw.Header().Get("Access-Control-Allow-Origin"))

	rw = serve(g, httptest.NewRequest(http.MethodPost, "/x", nil))
	require.Equal(t, http.StatusCreated, rw.Code)
	require.Contains(t, rw.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
