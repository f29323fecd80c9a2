package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"larder/internal/types"
)

// Authenticator resolves a bearer token to a user ID. The concrete
// implementation (session store, JWT verifier) lives outside this service;
// it is injected for testability.
type Authenticator interface {
	// ResolveToken returns the user ID the token belongs to, or an AppError
	// with an auth_ code when the token is invalid or expired.
	ResolveToken(ctx context.Context, token string) (string, error)
}

// authPublicPaths lists URL paths exempt from authentication. Webhook
// delivery authenticates with a signature header, not a bearer token.
var authPublicPaths = map[string]bool{
	"/health":             true,
	"/v1/webhooks/stripe": true,
}

// authOptionalPaths lists URL paths where a missing Authorization header is
// allowed: the request proceeds anonymously and downstream metering passes
// it through uncounted. A header that is present is still fully validated.
// Receipt scanning supports anonymous/demo use this way.
var authOptionalPaths = map[string]bool{
	"/v1/usage/receipt-scans": true,
}

// AuthMiddleware extracts the Bearer token, resolves it to a user ID, and
// injects the ID into the request context. Requests without a valid token
// receive 401 with a distinct code:
//   - auth_required:      missing Authorization header or empty Bearer token
//   - auth_token_invalid: malformed, unknown, or expired token
//
// If the Authenticator field on Server is nil (tests that don't inject one),
// the middleware passes through without authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if authOptionalPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Authorization header is required", nil))
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "Bearer token is required", nil))
			return
		}

		userID, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) {
				Error(w, r, appErr)
				return
			}
			s.Logger.Error("token resolution failed", "error", err)
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil))
			return
		}
		if userID == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithUserID(r.Context(), userID)))
	})
}

// extractBearerToken parses the Authorization header value and returns the
// token string. It expects "Bearer <token>" (case-insensitive scheme per
// RFC 7235). Returns empty string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}
