package external

import (
	"context"
	"time"

	"larder/internal/types"
)

// ---------------------------------------------------------------------------
// Billing Integration (Stripe)
// ---------------------------------------------------------------------------

// BillingService abstracts interactions with the payment provider (Stripe).
// Implementations translate between domain types and vendor-specific APIs.
type BillingService interface {
	// EnsureCustomer returns the provider customer ID for the user, creating
	// one and persisting the reference locally if the user has none. The
	// local reference is written before any session is created so a retry
	// never produces a duplicate customer.
	EnsureCustomer(ctx context.Context, userID string, email string) (string, error)

	// CreateCheckoutSession generates a checkout URL for a paid tier. userID
	// is set as client_reference_id and copied into subscription metadata
	// for webhook correlation.
	CreateCheckoutSession(ctx context.Context, userID string, tier types.PlanTier, interval types.BillingInterval, urls RedirectURLs) (checkoutURL string, sessionID string, err error)

	// CreatePortalSession generates a self-serve billing portal URL.
	// Fails with conflict_no_billing_customer when the user never checked out.
	CreatePortalSession(ctx context.Context, userID string, returnURL string) (portalURL string, err error)

	// GetSubscriptionByID retrieves the full subscription detail from the
	// provider. Used by the webhook reconciler to resolve price, status and
	// period boundaries after checkout completes.
	GetSubscriptionByID(ctx context.Context, subscriptionID string) (*Subscription, error)
}

// WebhookVerifier abstracts Stripe webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error
}

// RedirectURLs carries the post-checkout redirect targets. Both are built
// server-side from configuration, never from client input.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// Subscription is the provider-neutral view of one subscription, reduced to
// the fields the reconciler consumes.
type Subscription struct {
	ID          string
	Status      types.SubscriptionStatus
	Metadata    map[string]string
	PriceID     string // first line item's price
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Stripe event type constants prevent magic strings in webhook handling.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeInvoicePaid       = "invoice.paid"
	EventStripePaymentFailed     = "invoice.payment_failed"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
)

// Metadata keys this service writes to (and reads from) provider objects.
// Any payload missing them is treated as malformed-but-ignorable.
const (
	MetaUserID = "user_id"
	MetaTier   = "tier"
)
