package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"go-groupchat/internal/models"
)

// Claims carries the identity of a chat user. userId falls back to sub.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email"`
}

func (c *Claims) Identity() (models.Identity, error) {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return models.Identity{}, errors.New("token has no user id")
	}
	return models.Identity{UserID: id, Email: c.Email}, nil
}

// Verifier validates a bearer credential and extracts the identity from it.
type Verifier interface {
	Verify(token string) (models.Identity, error)
}

func parse(tokenString string, keyFunc jwt.Keyfunc, opts ...jwt.ParserOption) (models.Identity, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return models.Identity{}, errors.New("token is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, keyFunc, opts...)
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return models.Identity{}, errors.New("invalid token claims")
	}
	return claims.Identity()
}

// HMACVerifier validates HS256/384/512 tokens signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HMACVerifier) Verify(tokenString string) (models.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	return parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
}

// Issue signs an HS256 token for id. It backs the dev token command and tests.
func (v *HMACVerifier) Issue(id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: id.UserID,
		Email:  id.Email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// JWKSVerifier validates RS256 tokens against the issuer's published JWKS,
// refreshing the key set in the background.
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWKSVerifier(issuerURL string, refresh time.Duration) (*JWKSVerifier, error) {
	issuerURL = strings.TrimSuffix(issuerURL, "/")
	jwksURL := issuerURL + "/.well-known/jwks.json"

	slog.Info("[AUTH] Fetching JWKS", "url", jwksURL)

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               context.Background(),
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			slog.Error("[AUTH] Error refreshing JWKS", "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}

	slog.Info("[AUTH] JWKS loaded", "keys", len(jwks.KIDs()))

	return &JWKSVerifier{jwks: jwks, issuer: issuerURL}, nil
}

func (v *JWKSVerifier) Verify(tokenString string) (models.Identity, error) {
	return parse(tokenString, v.jwks.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
}

// Close stops the background refresh.
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}
