package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/config"
)

func newTestService(t *testing.T, expSeconds int) *Service {
	t.Helper()
	svc, err := NewService(config.JWTConfig{
		Secret:                "unit-test-secret",
		Issuer:                "hospital-system",
		ExpirationSeconds:     expSeconds,
		RefreshExpirationDays: 7,
	})
	require.NoError(t, err)
	return svc
}

func TestMintAndVerifyAccess(t *testing.T) {
	svc := newTestService(t, 3600)

	signed, expiresIn, err := svc.MintAccess("u1", "t1", "a@b.c", "Alice", "CARDIOLOGY",
		[]string{"DOCTOR"}, []string{"appointment:read"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), expiresIn)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Equal(t, []string{"DOCTOR"}, claims.Roles)
	assert.Equal(t, []string{"appointment:read"}, claims.Permissions)
	assert.Empty(t, claims.Type)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc := newTestService(t, 3600)
	signed, _, err := svc.MintAccess("u1", "t1", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(signed[:len(signed)-3] + "xyz")
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := newTestService(t, 3600)
	other, err := NewService(config.JWTConfig{
		Secret: "another-secret", Issuer: "hospital-system",
		ExpirationSeconds: 3600, RefreshExpirationDays: 7,
	})
	require.NoError(t, err)

	signed, _, err := other.MintAccess("u1", "t1", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	svc := newTestService(t, 3600)
	other, err := NewService(config.JWTConfig{
		Secret: "unit-test-secret", Issuer: "someone-else",
		ExpirationSeconds: 3600, RefreshExpirationDays: 7,
	})
	require.NoError(t, err)

	signed, _, err := other.MintAccess("u1", "t1", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyAcceptsTokenWithinClockSkew(t *testing.T) {
	// A token that expired less than the leeway ago still verifies.
	svc := newTestService(t, 3600)
	now := time.Now()
	claims := Claims{
		TenantID: "t1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "hospital-system",
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-30 * time.Second)),
		},
	}
	signed, err := jwt.NewWithClaims(svc.method, claims).SignedString(svc.signKey)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.NoError(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := newTestService(t, 3600)
	now := time.Now()
	claims := Claims{
		TenantID: "t1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "hospital-system",
			ExpiresAt: jwt.NewNumericDate(now.Add(-5 * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(svc.method, claims).SignedString(svc.signKey)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsMissingTenant(t *testing.T) {
	svc := newTestService(t, 3600)
	signed, _, err := svc.MintAccess("u1", "", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRefreshRequiresRefreshType(t *testing.T) {
	svc := newTestService(t, 3600)

	refresh, err := svc.MintRefresh("u1", "t1", "a@b.c")
	require.NoError(t, err)
	claims, err := svc.VerifyRefresh(refresh)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)

	access, _, err := svc.MintAccess("u1", "t1", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)
	_, err = svc.VerifyRefresh(access)
	assert.Error(t, err)
}

func TestShortSecretIsPadded(t *testing.T) {
	svc, err := NewService(config.JWTConfig{
		Secret: "s", Issuer: "hospital-system",
		ExpirationSeconds: 60, RefreshExpirationDays: 1,
	})
	require.NoError(t, err)

	signed, _, err := svc.MintAccess("u1", "t1", "a@b.c", "", "", nil, nil)
	require.NoError(t, err)
	_, err = svc.Verify(signed)
	assert.NoError(t, err)
}

func TestNewServiceRequiresSecretOrKeys(t *testing.T) {
	_, err := NewService(config.JWTConfig{Issuer: "hospital-system"})
	assert.Error(t, err)
}
