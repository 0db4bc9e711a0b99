package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/promptgist/promptgist/internal/config"
	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/internal/oidc"
	"github.com/promptgist/promptgist/internal/sessions"
	"github.com/promptgist/promptgist/internal/tokens"
	"github.com/promptgist/promptgist/internal/users"
	"github.com/promptgist/promptgist/pkg/logger"
	"github.com/promptgist/promptgist/pkg/middleware"
)

var log = logger.Component("auth")

// LoginRequest selects between the interactive authorization-code exchange
// and the password grant.
type LoginRequest struct {
	Mode        string `json:"mode" binding:"required"` // "password" | "auth_code"
	Username    string `json:"username"`
	Password    string `json:"password"`
	Code        string `json:"code"`         // authorization code
	RedirectURI string `json:"redirect_uri"` // redirect uri used in auth code flow
}

// AuthOptions carries the collaborators main resolves at startup.
type AuthOptions struct {
	Issuer *tokens.Issuer
	// IDTokens verifies ID tokens from the identity provider. When nil the
	// provider is discovered on first use.
	IDTokens   middleware.Verifier
	Blacklist  *sessions.Blacklist
	HTTPClient *http.Client
}

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	issuer      *tokens.Issuer
	blacklist   *sessions.Blacklist
	client      *http.Client

	mu       sync.Mutex
	idTokens middleware.Verifier
}

func NewAuthHandler(cfg *config.Config, u *users.Service, s *sessions.Service, opts AuthOptions) *AuthHandler {
	h := &AuthHandler{
		cfg:         cfg,
		usersSvc:    u,
		sessionsSvc: s,
		issuer:      opts.Issuer,
		blacklist:   opts.Blacklist,
		client:      opts.HTTPClient,
		idTokens:    opts.IDTokens,
	}
	if h.issuer == nil {
		h.issuer = tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	}
	if h.client == nil {
		h.client = &http.Client{Timeout: 15 * time.Second}
	}
	return h
}

// Register routes under /auth
func (h *AuthHandler) Register(rg gin.IRouter) {
	a := rg.Group("/auth")
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)
}

func (h *AuthHandler) refreshTTL() time.Duration {
	if ttl := h.cfg.JWT.RefreshTokenTTL; ttl > 0 {
		return ttl
	}
	return 7 * 24 * time.Hour
}

// Login exchanges credentials or an authorization code with Keycloak,
// verifies the ID token and opens a refresh session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode != "password" && req.Mode != "auth_code" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported mode"})
		return
	}
	kc := h.cfg.Keycloak
	if kc.URL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Keycloak not configured"})
		return
	}
	ctx := c.Request.Context()

	var tokenResp *tokenResponse
	var err error
	if req.Mode == "password" {
		tokenResp, err = requestPasswordToken(ctx, h.client, kc.TokenURL(), kc.ClientID, kc.ClientSecret, req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
	} else {
		if req.Code == "" || req.RedirectURI == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code and redirect_uri required for auth_code mode"})
			return
		}
		log.Debugf("login(auth_code): code length=%d redirect_uri=%s", len(req.Code), req.RedirectURI)
		tokenResp, err = requestAuthCodeToken(ctx, h.client, kc.TokenURL(), kc.ClientID, kc.ClientSecret, req.Code, req.RedirectURI)
		if err != nil {
			log.Errorf("auth-code token exchange error (redirect_uri=%q): %v", req.RedirectURI, err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
			return
		}
	}

	ver, err := h.idTokenVerifier(ctx)
	if err != nil {
		log.Errorf("id token verifier unavailable: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity provider unavailable"})
		return
	}
	claims, err := oidc.Claims(ctx, ver, tokenResp.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": err.Error()})
		return
	}
	u, err := h.usersSvc.UpsertFromClaims(ctx, claims)
	if err != nil {
		log.Errorf("user upsert error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user upsert failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid id token", "details": "subject missing"})
		return
	}

	rft, err := h.sessionsSvc.CreateSession(ctx, u.Identity(), h.refreshTTL())
	if err != nil {
		log.Errorf("failed to create session: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	access, err := h.issuer.Issue(u.Identity())
	if err != nil {
		log.Errorf("failed to create access token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": rft,
		"user":         u,
		"expiresIn":    int(h.issuer.TTL().Seconds()),
	})
}

// Refresh rotates a refresh token and returns a new token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, next, err := h.sessionsSvc.Rotate(c.Request.Context(), req.RefreshToken, h.refreshTTL())
	if errors.Is(err, sessions.ErrInvalidRefresh) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	if err != nil {
		log.Errorf("refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
		return
	}
	u := sess.User
	if u.ID == "" {
		u.ID = sess.Sub
	}
	access, err := h.issuer.Issue(u)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  access,
		"refreshToken": next,
		"expiresIn":    int(h.issuer.TTL().Seconds()),
	})
}

// Logout drops the refresh session and blacklists the presented access
// token until it expires. Both parts are optional, so signing out twice
// succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	var at string
	if n, _ := fmt.Sscanf(c.GetHeader("Authorization"), "Bearer %s", &at); n == 1 {
		if ttl := time.Until(tokens.ExpiresAt(at)); ttl > 0 {
			if err := h.blacklist.Revoke(ctx, at, ttl); err != nil {
				log.Errorf("blacklist access token: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to blacklist access token"})
				return
			}
		}
	}

	if req.RefreshToken != "" {
		if err := h.sessionsSvc.DeleteRefresh(ctx, req.RefreshToken); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to remove session"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the signed-in user. It runs behind the auth middleware.
func (h *AuthHandler) Me(c *gin.Context) {
	id, ok := identity.FromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	if h.usersSvc != nil {
		if u, err := h.usersSvc.GetBySub(c.Request.Context(), id.ID); err == nil && u != nil {
			c.JSON(http.StatusOK, gin.H{"user": id, "profile": u})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": id})
}

// idTokenVerifier returns the configured verifier, discovering the
// provider on first use. Discovery failures are not cached.
func (h *AuthHandler) idTokenVerifier(ctx context.Context) (middleware.Verifier, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.idTokens != nil {
		return h.idTokens, nil
	}
	ver, err := oidc.NewVerifier(ctx, h.cfg.Keycloak.Issuer(), h.cfg.Keycloak.ClientID)
	if err != nil {
		if h.cfg.Keycloak.AllowInsecure {
			log.Warnf("using insecure ID token verifier: %v", err)
			return oidc.NewInsecureVerifier(), nil
		}
		return nil, err
	}
	h.idTokens = ver
	return ver, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token"`
}

func postForm(ctx context.Context, client *http.Client, tokenURL string, form url.Values, basicID, basicSecret string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicSecret != "" {
		req.SetBasicAuth(basicID, basicSecret)
	}
	return client.Do(req)
}

func decodeToken(resp *http.Response) (*tokenResponse, error) {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

func requestPasswordToken(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, username, password string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"username":      {username},
		"password":      {password},
		"scope":         {"openid"},
	}
	resp, err := postForm(ctx, client, tokenURL, form, "", "")
	if err != nil {
		return nil, err
	}
	return decodeToken(resp)
}

// requestAuthCodeToken exchanges an authorization code. Client credentials
// go in the form first; a 401 retries with HTTP Basic auth, and Keycloak's
// transient "Code not valid" gets one more attempt.
func requestAuthCodeToken(ctx context.Context, client *http.Client, tokenURL, clientID, clientSecret, code, redirectURI string) (*tokenResponse, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}
	log.Debugf("token exchange: url=%s client_id=%s client_secret_set=%t redirect_uri=%s", tokenURL, clientID, clientSecret != "", redirectURI)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := postForm(ctx, client, tokenURL, form, "", "")
		if err == nil && resp.StatusCode == http.StatusUnauthorized {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			log.Warnf("token exchange returned 401 (%s); retrying with HTTP Basic auth", strings.TrimSpace(string(b)))
			resp, err = postForm(ctx, client, tokenURL, form, clientID, clientSecret)
		}
		if err != nil {
			lastErr = err
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if resp.StatusCode == http.StatusBadRequest && attempt == 1 {
			b, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if strings.Contains(string(b), "Code not valid") {
				lastErr = fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
				time.Sleep(150 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
		return decodeToken(resp)
	}
	return nil, fmt.Errorf("token exchange failed after retries: %w", lastErr)
}
