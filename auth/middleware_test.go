// Package auth tests JWT middleware behavior against a mock JWKS.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testIssuer = "https://project.supabase.co/auth/v1"

func TestMiddlewareMissingToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{}))
	router.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareMalformedHeader(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{}))
	router.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Token abc")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareInvalidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	badKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	tokenString := signToken(t, badKey, "test-key", verifier.issuer, verifier.audience)

	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{AllowAnonymous: true}))
	router.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 even with anonymous allowed, got %d", resp.Code)
	}
}

func TestMiddlewareValidToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", verifier.issuer, verifier.audience)

	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{RequireRoles: []string{"authenticated"}}))
	router.GET("/protected", func(c *gin.Context) {
		id := IdentityFromContext(c.Request.Context())
		if id.Anonymous() || id.Email != "clinician@example.com" {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestMiddlewareRoleRejected(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, key := newTestVerifier(t)
	tokenString := signToken(t, key, "test-key", verifier.issuer, verifier.audience)

	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{RequireRoles: []string{"service_role"}}))
	router.GET("/protected", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestMiddlewareHMACToken(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	secret := []byte("super-secret-jwt-token-with-at-least-32-characters")
	verifier, err := NewHMACVerifier(testIssuer, "", secret)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims(testIssuer, "authenticated"))
	tokenString, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	claims, err := verifier.Verify(tokenString)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != "user-123" || claims.Role != "authenticated" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifierRejectsHMACWithoutSecret(t *testing.T) {
	verifier, _ := newTestVerifier(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims(verifier.issuer, verifier.audience))
	tokenString, err := token.SignedString([]byte("guessed-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	if _, err := verifier.Verify(tokenString); err == nil {
		t.Fatalf("expected hmac token to be rejected")
	}
}

func TestMiddlewareAnonymousMintsCookie(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	verifier, _ := newTestVerifier(t)

	var seen string
	router := gin.New()
	router.Use(Middleware(verifier, MiddlewareConfig{AllowAnonymous: true}))
	router.GET("/api/sessions", func(c *gin.Context) {
		id := IdentityFromContext(c.Request.Context())
		if !id.Anonymous() {
			c.Status(http.StatusInternalServerError)
			return
		}
		seen = id.DeviceID
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !ValidDeviceID(seen) {
		t.Fatalf("expected minted device id, got %q", seen)
	}
	cookie := resp.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, DeviceCookie+"="+seen) || !strings.Contains(cookie, "HttpOnly") {
		t.Fatalf("expected device cookie, got %q", cookie)
	}
}

func TestMiddlewareAnonymousReusesCookie(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")
	existing := NewDeviceID()

	var seen string
	router := gin.New()
	router.Use(Middleware(nil, MiddlewareConfig{AllowAnonymous: true}))
	router.GET("/api/sessions", func(c *gin.Context) {
		seen = IdentityFromContext(c.Request.Context()).DeviceID
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: existing})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if seen != existing {
		t.Fatalf("expected %q, got %q", existing, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	req.Header.Set(DeviceHeader, "anon_not-a-uuid")
	req.AddCookie(&http.Cookie{Name: DeviceCookie, Value: existing})
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if seen != existing {
		t.Fatalf("expected malformed header to fall back to cookie, got %q", seen)
	}
}

func TestMiddlewarePublicPath(t *testing.T) {
	t.Setenv("AUTH_DISABLED", "false")

	router := gin.New()
	router.Use(Middleware(nil, MiddlewareConfig{PublicPaths: map[string]bool{"/health": true}}))
	router.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func newTestVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	verifier, err := NewVerifier(testIssuer+"/", "", server.URL)
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier, key
}

func testClaims(issuer, audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuer,
		"aud":   audience,
		"sub":   "user-123",
		"email": "clinician@example.com",
		"role":  "authenticated",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, issuer, audience string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims(issuer, audience))
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{
			{
				Kty: "RSA",
				Kid: kid,
				Use: "sig",
				Alg: "RS256",
				N:   n,
				E:   e,
			},
		},
	}
}

func TestHasRole(t *testing.T) {
	if !hasRole("authenticated", []string{"Authenticated"}) {
		t.Fatalf("expected role match")
	}
	if hasRole("", []string{"authenticated"}) {
		t.Fatalf("expected empty role to fail")
	}
}

func TestExtractBearerToken(t *testing.T) {
	token, ok := extractBearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if _, ok := extractBearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := extractBearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := extractBearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}

func TestIdentityFromContext(t *testing.T) {
	ctx := WithClaims(context.Background(), &Claims{Subject: "user-1", Email: "a@b.c"})
	id := IdentityFromContext(ctx)
	if id.UserID != "user-1" || id.Anonymous() {
		t.Fatalf("expected signed-in identity, got %+v", id)
	}

	anon := IdentityFromContext(WithDeviceID(context.Background(), "anon_x"))
	if !anon.Anonymous() || anon.DeviceID != "anon_x" {
		t.Fatalf("expected anonymous identity, got %+v", anon)
	}
}
