package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"larder/internal/types"
)

// ---------------------------------------------------------------------------
// Mock Implementations
// ---------------------------------------------------------------------------

type mockVerifier struct {
	err error
}

func (m *mockVerifier) Verify(payload []byte, header string, secret string) error {
	return m.err
}

type mockReconciler struct {
	payloads [][]byte
	err      error
}

func (m *mockReconciler) Process(ctx context.Context, payload []byte) error {
	m.payloads = append(m.payloads, payload)
	return m.err
}

func doWebhookRequest(h *StripeWebhookHandler, body []byte, sigHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewReader(body))
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	return rr
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestWebhookMissingSignatureRejected(t *testing.T) {
	rec := &mockReconciler{}
	h := NewStripeWebhookHandler(&mockVerifier{}, rec, "whsec_test", nil)

	rr := doWebhookRequest(h, []byte(`{"type":"invoice.paid"}`), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rec.payloads, "unverified payloads must never reach the reconciler")
}

func TestWebhookInvalidSignatureRejectedBeforeParsing(t *testing.T) {
	rec := &mockReconciler{}
	h := NewStripeWebhookHandler(&mockVerifier{err: errors.New("bad signature")}, rec, "whsec_test", nil)

	rr := doWebhookRequest(h, []byte(`not even json`), "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodeWebhookInvalidSignature))
	assert.Empty(t, rec.payloads)
}

func TestWebhookVerifiedPayloadProcessed(t *testing.T) {
	rec := &mockReconciler{}
	h := NewStripeWebhookHandler(&mockVerifier{}, rec, "whsec_test", nil)

	body := []byte(`{"id":"evt_1","type":"invoice.paid","data":{"object":{}}}`)
	rr := doWebhookRequest(h, body, "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, rec.payloads, 1)
	assert.Equal(t, body, rec.payloads[0])
}

func TestWebhookRetryableFailureReturnsErrorStatus(t *testing.T) {
	rec := &mockReconciler{err: types.NewAppError(types.ErrCodeInternalDB, "write failed", nil)}
	h := NewStripeWebhookHandler(&mockVerifier{}, rec, "whsec_test", nil)

	rr := doWebhookRequest(h, []byte(`{"type":"invoice.paid"}`), "t=1,v1=deadbeef")

	// Non-2xx makes the provider redeliver; the reconciler is idempotent.
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestWebhookUpstreamFailureReturnsBadGateway(t *testing.T) {
	rec := &mockReconciler{err: types.NewAppError(types.ErrCodeUpstreamUnavailable, "stripe timeout", nil)}
	h := NewStripeWebhookHandler(&mockVerifier{}, rec, "whsec_test", nil)

	rr := doWebhookRequest(h, []byte(`{"type":"invoice.paid"}`), "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
