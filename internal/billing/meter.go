package billing

import (
	"context"
	"time"

	"larder/internal/types"
)

// SubscriptionReader is the subset of the subscription store the meter needs.
type SubscriptionReader interface {
	// GetOrCreate returns the user's subscription row, creating a free-tier
	// row on first access.
	GetOrCreate(ctx context.Context, userID string) (*types.UserSubscription, error)
}

// UsageStore is the subset of the usage store the meter needs.
type UsageStore interface {
	GetOrCreate(ctx context.Context, userID, month string) (*types.UsageLimits, error)
	Increment(ctx context.Context, userID, month string, counter types.UsageCounter) (int64, error)
}

// Meter decides whether metered actions are allowed under the caller's tier
// and advances the monthly counters. Every check reads the tier from the
// subscription row, not a cached value, so a mid-session upgrade or
// downgrade takes effect on the next request.
//
// Check and increment are two store calls, not one transaction. Two
// concurrent requests can both pass a check just under the limit and both
// increment, overshooting the ceiling by at most N-1 for N in-flight
// requests. That relaxation is deliberate: the counters themselves stay
// exact (the increment is atomic), only the ceiling is soft at the margin.
type Meter struct {
	subs    SubscriptionReader
	usage   UsageStore
	catalog TierCatalog
	now     func() time.Time
}

// NewMeter creates a Meter. The now function may be nil, in which case
// time.Now is used; tests inject a fixed clock.
func NewMeter(subs SubscriptionReader, usage UsageStore, catalog TierCatalog, now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	return &Meter{subs: subs, usage: usage, catalog: catalog, now: now}
}

// limitsFor resolves the caller's current tier limits from the live
// subscription row.
func (m *Meter) limitsFor(ctx context.Context, userID string) (types.PlanLimits, error) {
	sub, err := m.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return types.PlanLimits{}, err
	}
	return m.catalog.Limits(sub.Tier), nil
}

// CanAddItems reports whether the user may add an item given their current
// item count. Remaining is max - current; unlimited tiers always allow.
func (m *Meter) CanAddItems(ctx context.Context, userID string, currentItemCount int64) (types.QuotaDecision, error) {
	limits, err := m.limitsFor(ctx, userID)
	if err != nil {
		return types.QuotaDecision{}, err
	}
	return types.AllowWithin(limits.MaxItems, currentItemCount), nil
}

// CanScanReceipt reports whether the user has receipt-scan quota left this
// month.
func (m *Meter) CanScanReceipt(ctx context.Context, userID string) (types.QuotaDecision, error) {
	return m.checkMonthly(ctx, userID, types.CounterReceiptScans)
}

// CanUseAI reports whether the user has AI-call quota left this month.
func (m *Meter) CanUseAI(ctx context.Context, userID string) (types.QuotaDecision, error) {
	return m.checkMonthly(ctx, userID, types.CounterAICalls)
}

// CanUseVoiceAssistant reports whether the user's tier includes the voice
// assistant. Voice access is boolean-gated; sessions are counted separately
// for analytics only.
func (m *Meter) CanUseVoiceAssistant(ctx context.Context, userID string) (bool, error) {
	limits, err := m.limitsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	return limits.VoiceAssistant, nil
}

// checkMonthly compares this month's value of the given counter against the
// tier ceiling for it.
func (m *Meter) checkMonthly(ctx context.Context, userID string, counter types.UsageCounter) (types.QuotaDecision, error) {
	limits, err := m.limitsFor(ctx, userID)
	if err != nil {
		return types.QuotaDecision{}, err
	}

	var limit types.Limit
	switch counter {
	case types.CounterReceiptScans:
		limit = limits.ReceiptScansPerMonth
	case types.CounterAICalls:
		limit = limits.AICallsPerMonth
	default:
		return types.QuotaDecision{}, types.NewAppError(
			types.ErrCodeValidationInvalidField, "counter has no monthly ceiling", nil)
	}

	usage, err := m.usage.GetOrCreate(ctx, userID, types.MonthKey(m.now()))
	if err != nil {
		return types.QuotaDecision{}, err
	}

	return types.AllowWithin(limit, usage.Counter(counter)), nil
}

// Track advances the named counter for the current month and returns the
// new value. Callers invoke it only after the corresponding check allowed
// the action.
func (m *Meter) Track(ctx context.Context, userID string, counter types.UsageCounter) (int64, error) {
	return m.usage.Increment(ctx, userID, types.MonthKey(m.now()), counter)
}

// CurrentUsage returns this month's usage row, creating it if absent.
// Used by the tier-info endpoint.
func (m *Meter) CurrentUsage(ctx context.Context, userID string) (*types.UsageLimits, error) {
	return m.usage.GetOrCreate(ctx, userID, types.MonthKey(m.now()))
}
