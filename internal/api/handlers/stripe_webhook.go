// This file implements the Stripe webhook handler.
//
// The handler is NOT behind auth middleware -- it is called directly by the
// billing provider. Security is provided by verifying the Stripe-Signature
// header using HMAC-SHA256 before the payload is parsed at all.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"larder/internal/core"
	"larder/internal/external"
	"larder/internal/types"
)

// maxWebhookBodySize is the maximum allowed size of a webhook payload (64 KB).
// Provider payloads are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// EventReconciler applies a verified webhook payload to local entitlement
// state. Unattributable events are dropped internally with a nil return;
// only retryable failures (store, upstream) surface as errors.
type EventReconciler interface {
	Process(ctx context.Context, payload []byte) error
}

// StripeWebhookHandler handles asynchronous events from the billing provider.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler EventReconciler
	secret     string
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler EventReconciler,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Separate from the billing
// handler's routes because webhook routes are public (no bearer auth).
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes an incoming webhook delivery.
//
//  1. Reads the raw body with a size limit.
//  2. Verifies the Stripe-Signature header; a missing or invalid signature
//     is rejected 400 before any parsing happens.
//  3. Delegates to the reconciler.
//  4. Returns 200 unless the failure is retryable, in which case a non-2xx
//     status makes the provider redeliver the event.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookInvalidSignature,
			"missing Stripe-Signature header",
			nil,
		))
		return
	}

	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeWebhookInvalidSignature,
			"webhook signature verification failed",
			err,
		))
		return
	}

	if err := h.reconciler.Process(r.Context(), payload); err != nil {
		// Store or upstream failure: answer non-2xx so the provider
		// redelivers. The reconciler's upserts are idempotent, so replays
		// are safe.
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			core.Error(w, r, appErr)
			return
		}
		core.Error(w, r, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"webhook processing failed",
			err,
		))
		return
	}

	w.WriteHeader(http.StatusOK)
}
