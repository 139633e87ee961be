package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
	appErrors "github.com/smartattend/integrity-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestTokenServiceValidateTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})
	signed := signTestToken(t, "test-secret", &models.JWTClaims{
		UserID:   "faculty-1",
		Role:     models.RoleFaculty,
		TenantID: "tenant-1",
		Email:    "faculty@example.edu",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "faculty-1", claims.UserID)
	assert.Equal(t, models.RoleFaculty, claims.Role)
	assert.Equal(t, "tenant-1", claims.TenantID)
}

func TestTokenServiceValidateTokenRejectsWrongSecret(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})
	signed := signTestToken(t, "other-secret", &models.JWTClaims{
		UserID: "faculty-1",
		Role:   models.RoleFaculty,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceValidateTokenRejectsExpired(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})
	signed := signTestToken(t, "test-secret", &models.JWTClaims{
		UserID: "faculty-1",
		Role:   models.RoleFaculty,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	_, err := svc.ValidateToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestTokenServiceValidateTokenRejectsGarbage(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "test-secret"})

	_, err := svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
