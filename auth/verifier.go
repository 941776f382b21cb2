// Package auth verifies Supabase JWTs via JWKS or the project secret and validates issuer/audience.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Edjavier-collab/Main2MI-sub000/app/config"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultAudience = "authenticated"
)

// Verifier validates Supabase access tokens. Asymmetric tokens are checked
// against the project JWKS; HS256 tokens against the legacy JWT secret.
type Verifier struct {
	issuer   string
	audience string
	keyfunc  keyfunc.Keyfunc
	secret   []byte
	parser   *jwt.Parser
}

// NewVerifierFromConfig initializes a verifier from SUPABASE_URL and/or SUPABASE_JWT_SECRET.
func NewVerifierFromConfig(cfg config.SupabaseConfig) (*Verifier, error) {
	if cfg.URL == "" && cfg.JWTSecret == "" {
		return nil, errors.New("SUPABASE_URL or SUPABASE_JWT_SECRET must be set")
	}
	issuer := ""
	if cfg.URL != "" {
		issuer = cfg.URL + "/auth/v1"
	}
	if cfg.URL == "" {
		return NewHMACVerifier(issuer, cfg.Audience, []byte(cfg.JWTSecret))
	}
	v, err := NewVerifier(issuer, cfg.Audience, "")
	if err != nil {
		return nil, err
	}
	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	}
	return v, nil
}

// NewVerifier builds a JWKS verifier with an optional JWKS URL override.
func NewVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	issuer = normalizeIssuer(issuer)
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if audience == "" {
		audience = defaultAudience
	}
	if jwksURL == "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	return &Verifier{
		issuer:   issuer,
		audience: audience,
		keyfunc:  keyProvider,
		parser:   newParser(issuer, audience),
	}, nil
}

// NewHMACVerifier builds a verifier for HS256 tokens signed with secret.
// An empty issuer skips the issuer check.
func NewHMACVerifier(issuer, audience string, secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret must be set")
	}
	if audience == "" {
		audience = defaultAudience
	}
	issuer = normalizeIssuer(issuer)
	return &Verifier{
		issuer:   issuer,
		audience: audience,
		secret:   secret,
		parser:   newParser(issuer, audience),
	}, nil
}

func newParser(issuer, audience string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name,
			jwt.SigningMethodHS256.Name,
		}),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return jwt.NewParser(opts...)
}

func (v *Verifier) key(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(v.secret) == 0 {
			return nil, errors.New("hmac tokens not accepted")
		}
		return v.secret, nil
	}
	if v.keyfunc == nil {
		return nil, errors.New("asymmetric tokens not accepted")
	}
	return v.keyfunc.Keyfunc(token)
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.key)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     strings.TrimSpace(readString(mapClaims, "email")),
		Role:      readString(mapClaims, "role"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func normalizeIssuer(issuer string) string {
	return strings.TrimRight(strings.TrimSpace(issuer), "/")
}

func readString(claims jwt.MapClaims, key string) string {
	val := claims[key]
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// AuthDisabled reports whether auth should be skipped for local development.
func AuthDisabled() bool {
	if strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		if strings.EqualFold(os.Getenv("APP_ENV"), "development") || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
			slog.Debug("auth disabled via AUTH_DISABLED for local development")
			return true
		}
	}
	return false
}
