// Package tokens issues and verifies the service's own HS256 access tokens.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/promptgist/promptgist/internal/identity"
	"github.com/promptgist/promptgist/pkg/middleware"
)

const issuer = "promptgist"

// Issuer signs access tokens and verifies them again on the way in.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue creates a signed JWT access token for u.
func (i *Issuer) Issue(u identity.User) (string, error) {
	if len(i.secret) == 0 {
		return "", errors.New("token secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   issuer,
		"sub":   u.ID,
		"name":  u.Name,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

type mapToken jwt.MapClaims

func (t mapToken) Claims(v interface{}) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Verify checks signature, algorithm, issuer and expiry.
func (i *Issuer) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	if len(i.secret) == 0 {
		return nil, errors.New("token secret not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	return mapToken(claims), nil
}

// ExpiresAt reads the exp claim without verifying the token. Zero means
// unknown.
func ExpiresAt(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
