package core

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/types"
)

type stubAuthenticator struct {
	userID string
	err    error
	tokens []string
}

func (s *stubAuthenticator) ResolveToken(ctx context.Context, token string) (string, error) {
	s.tokens = append(s.tokens, token)
	if s.err != nil {
		return "", s.err
	}
	return s.userID, nil
}

func newAuthTestServer(a Authenticator) *Server {
	return &Server{Logger: slog.Default(), Authenticator: a}
}

func doAuthRequest(s *Server, path, authHeader string) (*httptest.ResponseRecorder, string) {
	var gotUserID string
	handler := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = types.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr, gotUserID
}

func TestAuthMiddlewareInjectsUserID(t *testing.T) {
	auth := &stubAuthenticator{userID: "u1"}
	s := newAuthTestServer(auth)

	rr, userID := doAuthRequest(s, "/v1/entitlements", "Bearer tok_1")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, []string{"tok_1"}, auth.tokens)
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	s := newAuthTestServer(&stubAuthenticator{userID: "u1"})

	rr, _ := doAuthRequest(s, "/v1/entitlements", "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodeAuthRequired))
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	auth := &stubAuthenticator{err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)}
	s := newAuthTestServer(auth)

	rr, _ := doAuthRequest(s, "/v1/entitlements", "Bearer tok_bad")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodeAuthTokenInvalid))
}

func TestAuthMiddlewareWebhookPathBypassed(t *testing.T) {
	auth := &stubAuthenticator{err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid", nil)}
	s := newAuthTestServer(auth)

	// Webhook deliveries carry a signature header, not a bearer token.
	rr, _ := doAuthRequest(s, "/v1/webhooks/stripe", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, auth.tokens)
}

func TestAuthMiddlewareHealthPathBypassed(t *testing.T) {
	s := newAuthTestServer(&stubAuthenticator{err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid", nil)})

	rr, _ := doAuthRequest(s, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthMiddlewareOptionalPathAllowsAnonymous(t *testing.T) {
	auth := &stubAuthenticator{userID: "u1"}
	s := newAuthTestServer(auth)

	rr, userID := doAuthRequest(s, "/v1/usage/receipt-scans", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, userID, "anonymous request carries no user identity")
	assert.Empty(t, auth.tokens)
}

func TestAuthMiddlewareOptionalPathValidatesPresentToken(t *testing.T) {
	auth := &stubAuthenticator{err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil)}
	s := newAuthTestServer(auth)

	rr, _ := doAuthRequest(s, "/v1/usage/receipt-scans", "Bearer tok_bad")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddlewareNilAuthenticatorPassesThrough(t *testing.T) {
	s := newAuthTestServer(nil)

	rr, userID := doAuthRequest(s, "/v1/entitlements", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, userID)
}

func TestExtractBearerToken(t *testing.T) {
	require.Equal(t, "tok_1", extractBearerToken("Bearer tok_1"))
	require.Equal(t, "tok_1", extractBearerToken("bearer tok_1"), "scheme is case-insensitive")
	require.Empty(t, extractBearerToken("Basic dXNlcjpwYXNz"))
	require.Empty(t, extractBearerToken("Bearer "))
	require.Empty(t, extractBearerToken(""))
}
