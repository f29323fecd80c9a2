// This file implements the usage-recording endpoints the inventory backend
// calls before performing a metered action. Each route is wrapped by the
// entitlement gate middleware, which enforces the ceiling and advances the
// counter; the handler bodies only report the outcome.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"larder/internal/core"
	"larder/internal/types"
)

// QuotaChecker answers item-capacity questions for the caller.
type QuotaChecker interface {
	CanAddItems(ctx context.Context, userID string, currentItemCount int64) (types.QuotaDecision, error)
}

// ItemCounter reports the caller's live item count.
type ItemCounter interface {
	CountItems(ctx context.Context, userID string) (int64, error)
}

// EntitlementGate is the middleware surface the usage routes are mounted
// behind.
type EntitlementGate interface {
	CheckItemLimit(next http.Handler) http.Handler
	TrackReceiptScan(next http.Handler) http.Handler
	TrackAICall(next http.Handler) http.Handler
	CheckVoiceAssistantAccess(next http.Handler) http.Handler
}

// UsageHandler exposes the metered-action endpoints.
type UsageHandler struct {
	gate      EntitlementGate
	meter     QuotaChecker
	inventory ItemCounter
	usage     UsageReader
	logger    *slog.Logger
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(
	gate EntitlementGate,
	meter QuotaChecker,
	inventory ItemCounter,
	usage UsageReader,
	logger *slog.Logger,
) *UsageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageHandler{
		gate:      gate,
		meter:     meter,
		inventory: inventory,
		usage:     usage,
		logger:    logger,
	}
}

// RegisterRoutes mounts the usage endpoints behind the entitlement gate.
// A request that reaches the handler body has already passed the gate and,
// for metered counters, been counted.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.With(h.gate.TrackReceiptScan).Post("/usage/receipt-scans", h.RecordUsage)
	r.With(h.gate.TrackAICall).Post("/usage/ai-calls", h.RecordUsage)
	r.With(h.gate.CheckVoiceAssistantAccess).Post("/usage/voice-sessions", h.RecordUsage)
	r.Get("/limits/items", h.CheckItemCapacity)
	r.Get("/usage", h.GetUsage)
}

// RecordUsage acknowledges a gated, counted action. The gate middleware did
// the work; this body reports the month's updated usage snapshot. Anonymous
// receipt scans (allowed through the auth and gate layers for demo use) are
// acknowledged without a snapshot, since there is no row to report.
func (h *UsageHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]bool{"metered": false}})
		return
	}

	usage, err := h.usage.CurrentUsage(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usage})
}

// CheckItemCapacity handles GET /v1/limits/items. Read-only: the inventory
// backend calls it before an add-item flow to decide whether to show an
// upgrade prompt. The actual enforcement happens on the item-creation route
// via the CheckItemLimit middleware.
func (h *UsageHandler) CheckItemCapacity(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
		return
	}

	count, err := h.inventory.CountItems(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	decision, err := h.meter.CanAddItems(r.Context(), userID, count)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// GetUsage handles GET /v1/usage, returning this month's raw usage row.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := types.GetUserID(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
		return
	}

	usage, err := h.usage.CurrentUsage(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usage})
}
