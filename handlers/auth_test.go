package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptgist/promptgist/internal/config"
	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/internal/oidc"
	"github.com/promptgist/promptgist/internal/sessions"
	"github.com/promptgist/promptgist/internal/tokens"
	"github.com/promptgist/promptgist/internal/users"
	"github.com/promptgist/promptgist/pkg/middleware"
)

const testSecret = "handler-test-secret-32-bytes-xxxx"

type authFixture struct {
	h        *AuthHandler
	sessions *sessions.Service
	users    *users.Service
	issuer   *tokens.Issuer
	engine   *gin.Engine
}

func newAuthFixture(t *testing.T, keycloakURL string, bl *sessions.Blacklist) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Keycloak.URL = keycloakURL
	cfg.Keycloak.Realm = "realm"
	cfg.Keycloak.ClientID = "cid"
	cfg.Keycloak.ClientSecret = "csecret"
	cfg.JWT.Secret = testSecret
	cfg.JWT.RefreshTokenTTL = time.Hour

	f := &authFixture{
		sessions: sessions.NewService(sessions.NewMemoryRepository()),
		users:    users.NewService(users.NewMemoryUserRepository()),
		issuer:   tokens.NewIssuer(testSecret, 15*time.Minute),
	}
	f.h = NewAuthHandler(cfg, f.users, f.sessions, AuthOptions{
		Issuer:    f.issuer,
		IDTokens:  oidc.NewInsecureVerifier(),
		Blacklist: bl,
	})
	f.engine = gin.New()
	f.engine.Use(middleware.CORS())
	f.h.Register(f.engine.Group("/"))
	api := f.engine.Group("/api/v1", middleware.AuthMiddleware(f.issuer, bl))
	api.GET("/me", f.h.Me)
	return f
}

func (f *authFixture) post(path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *authFixture) get(path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func idToken(claims jwt.MapClaims) string {
	s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("idp-key"))
	return s
}

func keycloakStub(t *testing.T, claims jwt.MapClaims) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realms/realm/protocol/openid-connect/token", r.URL.Path)
		_ = r.ParseForm()
		if r.Form.Get("grant_type") == "password" && r.Form.Get("password") != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at", "id_token": idToken(claims)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	User         struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	} `json:"user"`
}

func TestLoginAuthCodeSuccess(t *testing.T) {
	srv := keycloakStub(t, jwt.MapClaims{"sub": "test-sub", "email": "a@b.c", "name": "Alice"})
	f := newAuthFixture(t, srv.URL, nil)

	w := f.post("/auth/login", `{"mode":"auth_code","code":"abc","redirect_uri":"http://localhost/cb"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotEmpty(t, got.AccessToken)
	assert.NotEmpty(t, got.RefreshToken)
	assert.Equal(t, 900, got.ExpiresIn)
	assert.Equal(t, "test-sub", got.User.Sub)

	// the access token is ours and carries the identity
	tok, err := f.issuer.Verify(context.Background(), got.AccessToken)
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, tok.Claims(&claims))
	assert.Equal(t, "test-sub", claims["sub"])

	// and the user was persisted
	u, err := f.users.GetBySub(context.Background(), "test-sub")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Alice", u.Name)
}

func TestLoginPassword(t *testing.T) {
	srv := keycloakStub(t, jwt.MapClaims{"sub": "pw-sub", "preferred_username": "bob"})
	f := newAuthFixture(t, srv.URL, nil)

	w := f.post("/auth/login", `{"mode":"password","username":"bob","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.post("/auth/login", `{"mode":"password","username":"bob","password":"wrong"}`, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin_Validation(t *testing.T) {
	f := newAuthFixture(t, "http://unused", nil)

	require.Equal(t, http.StatusBadRequest, f.post("/auth/login", `{}`, "").Code)
	require.Equal(t, http.StatusBadRequest, f.post("/auth/login", `{"mode":"magic"}`, "").Code)
	require.Equal(t, http.StatusBadRequest, f.post("/auth/login", `{"mode":"auth_code"}`, "").Code)
}

func TestLogin_IDTokenWithoutSubject(t *testing.T) {
	srv := keycloakStub(t, jwt.MapClaims{"email": "nosub@example.com"})
	f := newAuthFixture(t, srv.URL, nil)

	w := f.post("/auth/login", `{"mode":"auth_code","code":"abc","redirect_uri":"http://localhost/cb"}`, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// Ensure CORS headers are present for browser-origin requests (preflight + actual POST)
func TestLogin_CORSHeaders(t *testing.T) {
	f := newAuthFixture(t, "", nil)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.post("/auth/login", `{"mode":"password","username":"a","password":"b"}`, "")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t, "", nil)

	require.Equal(t, http.StatusUnauthorized, f.get("/api/v1/me", "").Code)

	access, err := f.issuer.Issue(identity.User{ID: "sub-me", Name: "Me"})
	require.NoError(t, err)
	w := f.get("/api/v1/me", access)
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		User identity.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, identity.User{ID: "sub-me", Name: "Me"}, got.User)
}

func TestRequestAuthCodeToken_Success(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at", "id_token": "idtok"})
	}))
	defer tokenSrv.Close()

	tr, err := requestAuthCodeToken(context.Background(), http.DefaultClient, tokenSrv.URL, "cid", "csecret", "code", "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "at", tr.AccessToken)
	assert.Equal(t, "idtok", tr.IDToken)
}

func TestRequestAuthCodeToken_Error(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Code not valid"}`))
	}))
	defer tokenSrv.Close()

	_, err := requestAuthCodeToken(context.Background(), http.DefaultClient, tokenSrv.URL, "cid", "csecret", "bad", "http://cb")
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "token endpoint returned 400")
	}
}

func TestRequestAuthCodeToken_RetrySucceeds(t *testing.T) {
	calls := 0
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Code not valid"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "ok", "id_token": "idtok"})
	}))
	defer tokenSrv.Close()

	tr, err := requestAuthCodeToken(context.Background(), http.DefaultClient, tokenSrv.URL, "cid", "csecret", "code", "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "ok", tr.AccessToken)
	assert.Equal(t, 2, calls)
}

// Ensure fallback to HTTP Basic is attempted when Keycloak rejects client_secret_post
func TestRequestAuthCodeToken_FallbackToBasic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, secret, ok := r.BasicAuth(); ok && id == "cid" && secret == "csecret" {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "basic-ok", "id_token": "idtok"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized_client"}`))
	}))
	defer srv.Close()

	tr, err := requestAuthCodeToken(context.Background(), http.DefaultClient, srv.URL, "cid", "csecret", "code", "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "basic-ok", tr.AccessToken)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newAuthFixture(t, "", nil)
	alice := identity.User{ID: "sub-refresh", Name: "Alice"}

	rt, err := f.sessions.CreateSession(context.Background(), alice, time.Hour)
	require.NoError(t, err)

	w := f.post("/auth/refresh", fmt.Sprintf(`{"refresh_token":"%s"}`, rt), "")
	require.Equal(t, http.StatusOK, w.Code)
	var got loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotEmpty(t, got.AccessToken)
	require.NotEmpty(t, got.RefreshToken)
	require.NotEqual(t, rt, got.RefreshToken)

	// the new access token opens the API as the same user
	w = f.get("/api/v1/me", got.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "sub-refresh")

	// the old refresh token is spent
	w = f.post("/auth/refresh", fmt.Sprintf(`{"refresh_token":"%s"}`, rt), "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_InvalidRefresh(t *testing.T) {
	f := newAuthFixture(t, "", nil)

	require.Equal(t, http.StatusUnauthorized, f.post("/auth/refresh", `{"refresh_token":"does-not-exist"}`, "").Code)
	require.Equal(t, http.StatusBadRequest, f.post("/auth/refresh", `{}`, "").Code)
}

func TestLogout_BlacklistsAccessAndDeletesRefresh(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()
	bl := sessions.NewBlacklist(redis.NewClient(&redis.Options{Addr: m.Addr()}))
	f := newAuthFixture(t, "", bl)

	alice := identity.User{ID: "sub-1", Name: "Alice"}
	rt, err := f.sessions.CreateSession(context.Background(), alice, time.Hour)
	require.NoError(t, err)
	access, err := f.issuer.Issue(alice)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, f.get("/api/v1/me", access).Code)

	w := f.post("/auth/logout", fmt.Sprintf(`{"refresh_token":"%s"}`, rt), access)
	require.Equal(t, http.StatusOK, w.Code)

	sess, err := f.sessions.ValidateRefresh(context.Background(), rt)
	require.NoError(t, err)
	assert.Nil(t, sess)

	assert.True(t, m.Exists("blacklist:access:"+access))
	assert.Equal(t, http.StatusUnauthorized, f.get("/api/v1/me", access).Code)

	// signing out again is harmless
	require.Equal(t, http.StatusOK, f.post("/auth/logout", "", "").Code)
}
