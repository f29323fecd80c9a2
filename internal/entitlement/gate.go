// Package entitlement provides HTTP middleware gating feature routes by
// subscription tier and monthly usage quota. The gate sits between the API
// chassis and the feature handlers: it resolves the caller's tier, enforces
// ceilings through the usage meter, and advances counters for metered
// actions.
package entitlement

import (
	"context"
	"log/slog"
	"net/http"

	"larder/internal/core"
	"larder/internal/types"
)

// Meter is the quota-decision surface the gate consumes.
type Meter interface {
	CanAddItems(ctx context.Context, userID string, currentItemCount int64) (types.QuotaDecision, error)
	CanScanReceipt(ctx context.Context, userID string) (types.QuotaDecision, error)
	CanUseAI(ctx context.Context, userID string) (types.QuotaDecision, error)
	CanUseVoiceAssistant(ctx context.Context, userID string) (bool, error)
	Track(ctx context.Context, userID string, counter types.UsageCounter) (int64, error)
}

// TierReader resolves the caller's current tier from the subscription store.
type TierReader interface {
	GetOrCreate(ctx context.Context, userID string) (*types.UserSubscription, error)
}

// TierCatalog exposes the limits attached to a tier.
type TierCatalog interface {
	Limits(tier types.PlanTier) types.PlanLimits
}

// InventoryCounter reports the caller's live item count for the item-limit
// check.
type InventoryCounter interface {
	CountItems(ctx context.Context, userID string) (int64, error)
}

// MetricsRecorder emits a count metric. Implementations are fire-and-forget.
type MetricsRecorder interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Gate holds the collaborators shared by all entitlement middleware.
type Gate struct {
	meter     Meter
	subs      TierReader
	catalog   TierCatalog
	inventory InventoryCounter
	metrics   MetricsRecorder
	logger    *slog.Logger
}

// NewGate creates a Gate. metrics may be nil.
func NewGate(
	meter Meter,
	subs TierReader,
	catalog TierCatalog,
	inventory InventoryCounter,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		meter:     meter,
		subs:      subs,
		catalog:   catalog,
		inventory: inventory,
		metrics:   metrics,
		logger:    logger,
	}
}

// RequireTier returns middleware enforcing a tier floor on the route.
// An unauthenticated request fails 401; a tier below the floor fails 403
// with the caller's current tier and the floor in the error details. On
// success the resolved tier and its limits are attached to the context so
// downstream handlers do not re-read the subscription row.
func (g *Gate) RequireTier(minimum types.PlanTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := types.GetUserID(r.Context())
			if !ok {
				core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
				return
			}

			sub, err := g.subs.GetOrCreate(r.Context(), userID)
			if err != nil {
				core.Error(w, r, err)
				return
			}

			if !sub.Tier.AtLeast(minimum) {
				g.denied(r.Context(), sub.Tier, "tier_floor")
				core.Error(w, r, types.NewAppErrorWithDetails(
					types.ErrCodeUpgradeRequired,
					"this feature requires a higher subscription tier",
					nil,
					map[string]any{
						"current_tier":  sub.Tier,
						"required_tier": minimum,
					},
				))
				return
			}

			ctx := types.WithResolvedTier(r.Context(), types.ResolvedTier{
				Tier:   sub.Tier,
				Limits: g.catalog.Limits(sub.Tier),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CheckItemLimit returns middleware enforcing the tier's item ceiling on
// item-creation routes. The live item count comes from the inventory store;
// soft-deleted items do not count against the ceiling.
func (g *Gate) CheckItemLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := types.GetUserID(r.Context())
		if !ok {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
			return
		}

		count, err := g.inventory.CountItems(r.Context(), userID)
		if err != nil {
			core.Error(w, r, err)
			return
		}

		decision, err := g.meter.CanAddItems(r.Context(), userID, count)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if !decision.Allowed {
			g.denied(r.Context(), "", "item_limit")
			details := map[string]any{"current_items": count}
			if sub, err := g.subs.GetOrCreate(r.Context(), userID); err == nil {
				details["max_items"] = g.catalog.Limits(sub.Tier).MaxItems
			}
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeLimitItems,
				"item limit reached for your plan",
				nil,
				details,
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// TrackReceiptScan returns middleware metering receipt scans. The counter is
// incremented only when the scan is allowed, so a rejected request never
// consumes quota. Unauthenticated requests pass through unmetered; the
// feature handler behind the gate enforces its own authentication.
func (g *Gate) TrackReceiptScan(next http.Handler) http.Handler {
	return g.trackCounter(next, types.CounterReceiptScans, types.ErrCodeLimitReceiptScans,
		"monthly receipt scan limit reached", g.meter.CanScanReceipt)
}

// TrackAICall returns middleware metering AI assistant calls.
func (g *Gate) TrackAICall(next http.Handler) http.Handler {
	return g.trackCounter(next, types.CounterAICalls, types.ErrCodeLimitAICalls,
		"monthly AI call limit reached", g.meter.CanUseAI)
}

// trackCounter is the shared check-then-increment flow for monthly-metered
// actions.
func (g *Gate) trackCounter(
	next http.Handler,
	counter types.UsageCounter,
	limitCode types.ErrorCode,
	limitMessage string,
	check func(ctx context.Context, userID string) (types.QuotaDecision, error),
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := types.GetUserID(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		decision, err := check(r.Context(), userID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if !decision.Allowed {
			g.denied(r.Context(), "", string(counter))
			details := map[string]any{"counter": counter}
			if decision.Remaining != nil {
				details["remaining"] = *decision.Remaining
			}
			core.Error(w, r, types.NewAppErrorWithDetails(limitCode, limitMessage, nil, details))
			return
		}

		if _, err := g.meter.Track(r.Context(), userID, counter); err != nil {
			core.Error(w, r, err)
			return
		}
		g.count(r.Context(), types.MetricUsageIncrement, map[string]string{types.DimCounter: string(counter)})

		next.ServeHTTP(w, r)
	})
}

// CheckVoiceAssistantAccess returns middleware gating the voice assistant
// behind tiers that include it. Allowed sessions are counted for analytics;
// the count has no ceiling.
func (g *Gate) CheckVoiceAssistantAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := types.GetUserID(r.Context())
		if !ok {
			core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required", nil))
			return
		}

		allowed, err := g.meter.CanUseVoiceAssistant(r.Context(), userID)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if !allowed {
			g.denied(r.Context(), "", "voice_assistant")
			core.Error(w, r, types.NewAppError(
				types.ErrCodeVoiceProRequired,
				"the voice assistant requires a Pro or Family subscription",
				nil,
			))
			return
		}

		if _, err := g.meter.Track(r.Context(), userID, types.CounterVoiceSessions); err != nil {
			// Analytics-only counter; a failed increment must not block the
			// session.
			g.logger.WarnContext(r.Context(), "voice session count failed", "error", err)
		}

		next.ServeHTTP(w, r)
	})
}

// denied emits the gate-denial metric.
func (g *Gate) denied(ctx context.Context, tier types.PlanTier, reason string) {
	if g.metrics == nil {
		return
	}
	dims := map[string]string{types.DimReason: reason}
	if tier != "" {
		dims[types.DimTier] = string(tier)
	}
	g.metrics.Count(ctx, types.MetricGateDenied, dims)
}

// count emits a metric when a recorder is configured.
func (g *Gate) count(ctx context.Context, name string, dims map[string]string) {
	if g.metrics != nil {
		g.metrics.Count(ctx, name, dims)
	}
}
