package types

// PlanTier identifies a subscription tier. The rank order is
// free (0) < pro (1) < family (2); comparisons use Rank, never
// string ordering.
type PlanTier string

const (
	PlanFree   PlanTier = "free"
	PlanPro    PlanTier = "pro"
	PlanFamily PlanTier = "family"
)

// Rank returns the tier's position in the upgrade ladder.
// Unknown tiers rank below free so they never satisfy a tier floor.
func (t PlanTier) Rank() int {
	switch t {
	case PlanFree:
		return 0
	case PlanPro:
		return 1
	case PlanFamily:
		return 2
	default:
		return -1
	}
}

// Valid reports whether t is one of the three known tiers.
func (t PlanTier) Valid() bool {
	return t.Rank() >= 0
}

// AtLeast reports whether t meets the given tier floor.
func (t PlanTier) AtLeast(minimum PlanTier) bool {
	return t.Rank() >= minimum.Rank()
}

// SubscriptionStatus mirrors the billing provider's subscription lifecycle.
// The empty string means "no subscription exists" (free tier row).
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
)

// UsageCounter names one of the metered monthly counters on a usage row.
type UsageCounter string

const (
	CounterReceiptScans  UsageCounter = "receipt_scans"
	CounterAICalls       UsageCounter = "ai_calls"
	CounterVoiceSessions UsageCounter = "voice_sessions"
)

// Valid reports whether c names a known counter column.
func (c UsageCounter) Valid() bool {
	switch c {
	case CounterReceiptScans, CounterAICalls, CounterVoiceSessions:
		return true
	default:
		return false
	}
}

// BillingInterval selects a monthly or yearly price for checkout.
type BillingInterval string

const (
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)
