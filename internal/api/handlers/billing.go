// Package handlers contains the HTTP handler implementations for the Larder
// entitlement API.
//
// This file implements the billing surface: checkout and portal session
// creation, and the entitlement snapshot endpoint.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"larder/internal/config"
	"larder/internal/core"
	"larder/internal/external"
	"larder/internal/types"
)

// --- Service Interfaces ---
//
// Interfaces are defined locally per handler file and injected via the
// constructor. This avoids coupling to concrete types and enables test
// mocking.

// CheckoutService abstracts the payment provider operations the billing
// handler drives.
type CheckoutService interface {
	// EnsureCustomer creates (and persists) a provider customer for the user
	// if none exists. Required before checkout.
	EnsureCustomer(ctx context.Context, userID string, email string) (customerID string, err error)

	// CreateCheckoutSession generates a URL for the user to enter payment info.
	CreateCheckoutSession(ctx context.Context, userID string, tier types.PlanTier, interval types.BillingInterval, urls external.RedirectURLs) (checkoutURL string, sessionID string, err error)

	// CreatePortalSession generates a URL for self-serve billing management.
	CreatePortalSession(ctx context.Context, userID string, returnURL string) (portalURL string, err error)
}

// SubscriptionReader resolves the caller's subscription row.
type SubscriptionReader interface {
	GetOrCreate(ctx context.Context, userID string) (*types.UserSubscription, error)
}

// TierCatalog exposes the limits attached to a tier.
type TierCatalog interface {
	Limits(tier types.PlanTier) types.PlanLimits
}

// UsageReader returns the current month's usage row.
type UsageReader interface {
	CurrentUsage(ctx context.Context, userID string) (*types.UsageLimits, error)
}

// MetricsRecorder emits a count metric. Implementations are fire-and-forget.
type MetricsRecorder interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// --- Request/Response Models ---

// CreateCheckoutRequest is the request body for POST /v1/billing/checkout-session.
//
// SuccessURL and CancelURL are intentionally omitted, a deliberate divergence
// from the caller-supplied redirect targets older clients expect: redirect
// targets are built server-side from the configured dashboard URL to prevent
// open redirects. Requests that still send them are rejected as unknown
// fields.
type CreateCheckoutRequest struct {
	Plan     types.PlanTier        `json:"plan" validate:"required,plan_tier"`
	Interval types.BillingInterval `json:"interval" validate:"omitempty,billing_interval"`
	Email    string                `json:"email" validate:"omitempty,email"`
}

// CheckoutResponse is the response for POST /v1/billing/checkout-session.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// PortalResponse is the response for POST /v1/billing/portal-session.
type PortalResponse struct {
	PortalURL string `json:"portal_url"`
}

// --- Billing Handler ---

// BillingHandler handles synchronous billing actions initiated by the user.
type BillingHandler struct {
	service      CheckoutService
	subs         SubscriptionReader
	catalog      TierCatalog
	usage        UsageReader
	metrics      MetricsRecorder
	validator    *core.Validator
	dashboardURL string
	logger       *slog.Logger
}

// NewBillingHandler creates a BillingHandler with the provided dependencies.
func NewBillingHandler(
	svc CheckoutService,
	subs SubscriptionReader,
	catalog TierCatalog,
	usage UsageReader,
	metrics MetricsRecorder,
	cfg *config.Config,
	v *core.Validator,
	l *slog.Logger,
) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}

	dashboardURL := ""
	if cfg != nil {
		dashboardURL = cfg.Server.DashboardURL
	}

	return &BillingHandler{
		service:      svc,
		subs:         subs,
		catalog:      catalog,
		usage:        usage,
		metrics:      metrics,
		validator:    v,
		dashboardURL: dashboardURL,
		logger:       l,
	}
}

// RegisterRoutes mounts the billing and entitlement endpoints. Auth
// middleware is already applied by the parent router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.CreateCheckoutSession)
	r.Post("/billing/portal-session", h.CreatePortalSession)
	r.Get("/entitlements", h.GetEntitlements)
}

// CreateCheckoutSession handles POST /v1/billing/checkout-session.
// Validates the requested plan, ensures a provider customer exists, and
// returns a hosted checkout URL.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
		return
	}

	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Plan == types.PlanFree {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidPlan,
			"the free plan has no checkout; cancel the paid subscription instead",
			nil,
		))
		return
	}
	if req.Interval == "" {
		req.Interval = types.IntervalMonth
	}

	if _, err := h.service.EnsureCustomer(r.Context(), userID, req.Email); err != nil {
		core.Error(w, r, err)
		return
	}

	urls := external.RedirectURLs{
		Success: h.dashboardURL + "/billing?checkout=success&session_id={CHECKOUT_SESSION_ID}",
		Cancel:  h.dashboardURL + "/billing?checkout=cancelled",
	}

	checkoutURL, sessionID, err := h.service.CreateCheckoutSession(r.Context(), userID, req.Plan, req.Interval, urls)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.metrics != nil {
		h.metrics.Count(r.Context(), types.MetricCheckoutStarted, map[string]string{
			types.DimTier: string(req.Plan),
		})
	}

	h.logger.InfoContext(r.Context(), "checkout session created",
		"user_id", userID, "plan", req.Plan, "interval", req.Interval)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}

// CreatePortalSession handles POST /v1/billing/portal-session.
// Fails 409 when the user never completed a checkout (no provider customer).
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
		return
	}

	portalURL, err := h.service.CreatePortalSession(r.Context(), userID, h.dashboardURL+"/billing")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PortalResponse{PortalURL: portalURL}})
}

// GetEntitlements handles GET /v1/entitlements.
// Returns the caller's resolved tier, its limits, and this month's usage.
func (h *BillingHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
		return
	}

	sub, err := h.subs.GetOrCreate(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	usage, err := h.usage.CurrentUsage(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	info := types.TierInfo{
		Tier:   sub.Tier,
		Limits: h.catalog.Limits(sub.Tier),
		Usage: types.UsageInfo{
			Month:         usage.Month,
			ReceiptScans:  usage.ReceiptScans,
			AICalls:       usage.AICalls,
			VoiceSessions: usage.VoiceSessions,
		},
		Status:               sub.Status,
		StripeCustomerID:     sub.StripeCustomerID,
		StripeSubscriptionID: sub.StripeSubscriptionID,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: info})
}
