package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"go-groupchat/internal/models"
)

const testSecret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestHMACVerifierAcceptsIssuedToken(t *testing.T) {
	v := NewHMACVerifier(testSecret, "")
	token, err := v.Issue(models.Identity{UserID: "u1", Email: "u1@example.com"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	for _, raw := range []string{token, "Bearer " + token} {
		id, err := v.Verify(raw)
		if err != nil {
			t.Fatalf("Verify(%q): %v", raw[:10], err)
		}
		if id.UserID != "u1" || id.Email != "u1@example.com" {
			t.Errorf("identity = %+v", id)
		}
	}
}

func TestHMACVerifierFallsBackToSubject(t *testing.T) {
	v := NewHMACVerifier(testSecret, "")
	token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-1"},
		Email:            "s@example.com",
	}, "")

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "sub-1" {
		t.Errorf("UserID = %q, want sub-1", id.UserID)
	}
}

func TestHMACVerifierRejects(t *testing.T) {
	v := NewHMACVerifier(testSecret, "chat")
	past := time.Now().Add(-time.Hour)

	cases := map[string]string{
		"empty":   "",
		"garbage": "not.a.jwt",
		"expired": sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chat", ExpiresAt: jwt.NewNumericDate(past)},
		}, ""),
		"wrong signature": sign(t, jwt.SigningMethodHS256, []byte("other"), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chat"},
		}, ""),
		"wrong issuer": sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "elsewhere"},
		}, ""),
		"no user": sign(t, jwt.SigningMethodHS256, []byte(testSecret), &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "chat"},
		}, ""),
		"none alg": sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: "chat"},
		}, ""),
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(token); err == nil {
				t.Error("expected verification to fail")
			}
		})
	}
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string) *httptest.Server {
	t.Helper()
	e := big.NewInt(int64(key.PublicKey.E)).Bytes()
	body, err := json.Marshal(map[string]interface{}{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(e),
		}},
	})
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSVerifier(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := newJWKSServer(t, key, "kid-1")

	v, err := NewJWKSVerifier(srv.URL+"/", 0)
	if err != nil {
		t.Fatalf("NewJWKSVerifier: %v", err)
	}
	defer v.Close()

	valid := sign(t, jwt.SigningMethodRS256, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    srv.URL,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email: "u1@example.com",
	}, "kid-1")

	id, err := v.Verify(valid)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != "u1" || id.Email != "u1@example.com" {
		t.Errorf("identity = %+v", id)
	}

	noExpiry := sign(t, jwt.SigningMethodRS256, key, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", Issuer: srv.URL},
	}, "kid-1")
	if _, err := v.Verify(noExpiry); err == nil {
		t.Error("expected token without exp to be rejected")
	}

	other, _ := rsa.GenerateKey(rand.Reader, 2048)
	forged := sign(t, jwt.SigningMethodRS256, other, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    srv.URL,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, "kid-1")
	if _, err := v.Verify(forged); err == nil {
		t.Error("expected token signed by another key to be rejected")
	}
}

func TestNewJWKSVerifierFailsWhenUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if _, err := NewJWKSVerifier(srv.URL, 0); err == nil {
		t.Error("expected error for unreachable issuer")
	}
}
