package types

import (
	"time"
)

// UserSubscription is the persisted entitlement state for one user.
// Exactly one row exists per user (unique on UserID); rows are created
// lazily on first access with tier=free and never deleted, only downgraded.
//
// Invariant: Tier == PlanFree whenever StripeSubscriptionID is nil.
type UserSubscription struct {
	ID     string   `json:"id" db:"id"`
	UserID string   `json:"user_id" db:"user_id"`
	Tier   PlanTier `json:"tier" db:"tier"`

	// External billing references. CustomerID survives cancellation so a
	// future checkout reuses the same provider-side customer.
	StripeCustomerID     *string `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	StripeSubscriptionID *string `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	StripePriceID        *string `json:"stripe_price_id,omitempty" db:"stripe_price_id"`

	Status             *SubscriptionStatus `json:"status,omitempty" db:"status"`
	CurrentPeriodStart *time.Time          `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time          `json:"current_period_end,omitempty" db:"current_period_end"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SubscriptionPatch is a partial update of the billing-derived fields on a
// UserSubscription row. Only non-nil fields are applied; it is an explicit
// field set, never a merge of arbitrary JSON.
//
// To clear a nullable column, set the corresponding Clear flag; a nil pointer
// means "leave unchanged".
type SubscriptionPatch struct {
	Tier                 *PlanTier
	StripeCustomerID     *string
	StripeSubscriptionID *string
	StripePriceID        *string
	Status               *SubscriptionStatus
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time

	// ClearSubscription resets StripeSubscriptionID, StripePriceID, Status
	// and both period timestamps to NULL. Used on subscription deletion.
	ClearSubscription bool
}

// IsEmpty reports whether the patch would change nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.Tier == nil &&
		p.StripeCustomerID == nil &&
		p.StripeSubscriptionID == nil &&
		p.StripePriceID == nil &&
		p.Status == nil &&
		p.CurrentPeriodStart == nil &&
		p.CurrentPeriodEnd == nil &&
		!p.ClearSubscription
}

// UsageLimits is the per-(user, calendar-month) consumption record.
// Counters are monotonically non-decreasing within a month and never
// negative; a fresh row starts at zero (no carry-over between months).
// Rows are never deleted; history is retained for audit.
type UsageLimits struct {
	ID            string `json:"id" db:"id"`
	UserID        string `json:"user_id" db:"user_id"`
	Month         string `json:"month" db:"month"` // YYYY-MM
	ReceiptScans  int64  `json:"receipt_scans" db:"receipt_scans"`
	AICalls       int64  `json:"ai_calls" db:"ai_calls"`
	VoiceSessions int64  `json:"voice_sessions" db:"voice_sessions"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counter returns the value of the named counter.
func (u *UsageLimits) Counter(c UsageCounter) int64 {
	switch c {
	case CounterReceiptScans:
		return u.ReceiptScans
	case CounterAICalls:
		return u.AICalls
	case CounterVoiceSessions:
		return u.VoiceSessions
	default:
		return 0
	}
}

// MonthKey formats t as the 7-character YYYY-MM usage-period key.
// The key's natural sort order matches chronological order.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// QuotaDecision is the result of a usage-meter check.
type QuotaDecision struct {
	Allowed bool `json:"allowed"`
	// Remaining is the headroom under a finite ceiling (max - current,
	// clamped at zero). Nil when the ceiling is unlimited.
	Remaining *int64 `json:"remaining"`
}

// AllowWithin builds a decision from a limit and the current usage value.
func AllowWithin(limit Limit, current int64) QuotaDecision {
	d := QuotaDecision{Allowed: limit.Allows(current)}
	if rem, finite := limit.Remaining(current); finite {
		d.Remaining = &rem
	}
	return d
}

// TierInfo is the read-only entitlement snapshot returned by the tier-info
// endpoint: resolved tier, its limits, this month's usage, and the raw
// subscription references when a paid subscription exists.
type TierInfo struct {
	Tier   PlanTier   `json:"tier"`
	Limits PlanLimits `json:"limits"`
	Usage  UsageInfo  `json:"usage"`

	Status               *SubscriptionStatus `json:"status,omitempty"`
	StripeCustomerID     *string             `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string             `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time          `json:"current_period_end,omitempty"`
}

// UsageInfo is the current-month usage snapshot inside TierInfo.
type UsageInfo struct {
	Month         string `json:"month"`
	ReceiptScans  int64  `json:"receipt_scans"`
	AICalls       int64  `json:"ai_calls"`
	VoiceSessions int64  `json:"voice_sessions"`
}
