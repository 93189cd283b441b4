// Package token mints and verifies the signed tokens that carry tenant and
// RBAC claims between services.
package token

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
)

// hs512MinSecretBytes is the minimum secret length for HMAC-SHA512; shorter
// configured secrets are zero-padded up to it.
const hs512MinSecretBytes = 64

// clockSkew is the accepted clock drift between services.
const clockSkew = 60 * time.Second

// Claims is the claim set minted for access tokens. Refresh tokens carry
// only Subject, Email, TenantID and Type.
type Claims struct {
	TenantID    string   `json:"tenantId"`
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Department  string   `json:"department,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Type        string   `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens with one scheme per deployment: HS512
// with the shared secret, or RS256 when a key pair is configured.
type Service struct {
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration

	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
}

// NewService builds the token service from configuration. The scheme is
// fixed at startup; mixing HS and RS tokens in one deployment is not
// supported.
func NewService(cfg config.JWTConfig) (*Service, error) {
	s := &Service{
		issuer:     cfg.Issuer,
		accessTTL:  time.Duration(cfg.ExpirationSeconds) * time.Second,
		refreshTTL: time.Duration(cfg.RefreshExpirationDays) * 24 * time.Hour,
	}

	if cfg.PrivateKeyPath != "" && cfg.PublicKeyPath != "" {
		priv, pub, err := loadKeyPair(cfg.PrivateKeyPath, cfg.PublicKeyPath)
		if err != nil {
			return nil, err
		}
		s.method = jwt.SigningMethodRS256
		s.signKey = priv
		s.verifyKey = pub
		return s, nil
	}

	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt: no secret and no key pair configured")
	}
	secret := padSecret([]byte(cfg.Secret), hs512MinSecretBytes)
	s.method = jwt.SigningMethodHS512
	s.signKey = secret
	s.verifyKey = secret
	return s, nil
}

// MintAccess signs an access token carrying the full RBAC claim set.
func (s *Service) MintAccess(userID, tenantID, email, name, department string, roles, permissions []string) (string, int64, error) {
	now := time.Now()
	claims := Claims{
		TenantID:    tenantID,
		Email:       email,
		Name:        name,
		Department:  department,
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", 0, fmt.Errorf("jwt: signing failed: %w", err)
	}
	return signed, int64(s.accessTTL.Seconds()), nil
}

// MintRefresh signs a refresh token with the reduced claim set and the
// longer lifetime.
func (s *Service) MintRefresh(userID, tenantID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		Email:    email,
		Type:     "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.signKey)
	if err != nil {
		return "", fmt.Errorf("jwt: signing failed: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer and expiry, and requires a non-blank
// tenantId claim. Tokens failing any check are rejected as Unauthorized.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != s.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.verifyKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil || !parsed.Valid {
		return nil, apperr.Unauthorized("Invalid or expired token").WithCause(err)
	}
	if claims.TenantID == "" {
		return nil, apperr.Unauthorized("Token is missing tenant context")
	}
	return claims, nil
}

// VerifyRefresh verifies a token and additionally requires type=refresh.
func (s *Service) VerifyRefresh(tokenString string) (*Claims, error) {
	claims, err := s.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != "refresh" {
		return nil, apperr.Unauthorized("Not a refresh token")
	}
	return claims, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func padSecret(secret []byte, min int) []byte {
	if len(secret) >= min {
		return secret
	}
	padded := make([]byte, min)
	copy(padded, secret)
	return padded
}

func loadKeyPair(privPath, pubPath string) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		return nil, nil, fmt.Errorf("jwt: read private key: %w", err)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("jwt: parse private key: %w", err)
	}
	pubPEM, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, nil, fmt.Errorf("jwt: read public key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("jwt: parse public key: %w", err)
	}
	return priv, pub, nil
}
