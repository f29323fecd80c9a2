package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/types"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "larder-identity",
		Audience:  jwt.ClaimStrings{"larder-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
}

func requireTokenInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestNewJWTAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewJWTAuthenticator("", "", "")
	assert.Error(t, err)
}

func TestResolveTokenReturnsSubject(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "larder-identity", "larder-api")
	require.NoError(t, err)

	userID, err := a.ResolveToken(context.Background(), signToken(t, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
}

func TestResolveTokenRejectsWrongSecret(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	_, err = a.ResolveToken(context.Background(), signToken(t, "other-secret", validClaims()))
	requireTokenInvalid(t, err)
}

func TestResolveTokenRejectsExpired(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	claims := validClaims()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	_, err = a.ResolveToken(context.Background(), signToken(t, testSecret, claims))
	requireTokenInvalid(t, err)
}

func TestResolveTokenRequiresExpiration(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	claims := validClaims()
	claims.ExpiresAt = nil

	_, err = a.ResolveToken(context.Background(), signToken(t, testSecret, claims))
	requireTokenInvalid(t, err)
}

func TestResolveTokenRejectsWrongIssuer(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "larder-identity", "")
	require.NoError(t, err)

	claims := validClaims()
	claims.Issuer = "someone-else"

	_, err = a.ResolveToken(context.Background(), signToken(t, testSecret, claims))
	requireTokenInvalid(t, err)
}

func TestResolveTokenRejectsMissingSubject(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	claims := validClaims()
	claims.Subject = ""

	_, err = a.ResolveToken(context.Background(), signToken(t, testSecret, claims))
	requireTokenInvalid(t, err)
}

func TestResolveTokenRejectsUnsignedAlgorithm(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, validClaims()).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = a.ResolveToken(context.Background(), token)
	requireTokenInvalid(t, err)
}

func TestResolveTokenRejectsGarbage(t *testing.T) {
	a, err := NewJWTAuthenticator(testSecret, "", "")
	require.NoError(t, err)

	_, err = a.ResolveToken(context.Background(), "not.a.token")
	requireTokenInvalid(t, err)
}
