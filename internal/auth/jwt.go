// Package auth verifies access tokens issued by the identity service.
// Larder does not mint tokens; it only checks the signature and standard
// claims and extracts the subject as the user ID.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"larder/internal/types"
)

// JWTAuthenticator validates HS256 bearer tokens against the shared signing
// secret. It implements the core.Authenticator contract.
type JWTAuthenticator struct {
	secret   []byte
	issuer   string
	audience string
	parser   *jwt.Parser
}

// NewJWTAuthenticator creates a JWTAuthenticator. issuer and audience are
// enforced when non-empty.
func NewJWTAuthenticator(secret string, issuer, audience string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &JWTAuthenticator{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// ResolveToken validates the token and returns its subject. All failures map
// to auth_token_invalid; the specific reason stays in the wrapped error for
// logs only.
func (a *JWTAuthenticator) ResolveToken(_ context.Context, token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := a.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", err)
	}
	if !parsed.Valid {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)
	}
	if claims.Subject == "" {
		return "", types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token",
			fmt.Errorf("token has no subject"))
	}

	return claims.Subject, nil
}
