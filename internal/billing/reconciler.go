package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"larder/internal/external"
	"larder/internal/types"
)

// SubscriptionStore is the subscription-store access the reconciler needs.
type SubscriptionStore interface {
	GetOrCreate(ctx context.Context, userID string) (*types.UserSubscription, error)
	Update(ctx context.Context, userID string, patch types.SubscriptionPatch) (*types.UserSubscription, error)
}

// SubscriptionFetcher retrieves full subscription detail from the billing
// provider. Checkout and invoice events carry only a subscription ID; the
// price, status and period boundaries come from this lookup.
type SubscriptionFetcher interface {
	GetSubscriptionByID(ctx context.Context, subscriptionID string) (*external.Subscription, error)
}

// TierResolver maps a provider price ID back to the tier it sells.
type TierResolver interface {
	TierForPrice(priceID string) (types.PlanTier, bool)
}

// MetricsRecorder emits a count metric. Implementations are fire-and-forget.
type MetricsRecorder interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Reconciler applies billing provider webhook events to the local
// entitlement state. Signature verification happens before Process is
// called; Process trusts its payload.
//
// Event handling is idempotent: every handler that writes does so as an
// upsert keyed on the user, so a redelivered event converges to the same
// row. Malformed or
// unattributable events (unknown type, missing user metadata) are logged
// and dropped with a nil return so the provider does not redeliver them;
// only store and upstream failures return an error, which the HTTP handler
// surfaces as a retryable status.
type Reconciler struct {
	store   SubscriptionStore
	billing SubscriptionFetcher
	tiers   TierResolver
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewReconciler creates a Reconciler. metrics may be nil.
func NewReconciler(
	store SubscriptionStore,
	billing SubscriptionFetcher,
	tiers TierResolver,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   store,
		billing: billing,
		tiers:   tiers,
		metrics: metrics,
		logger:  logger,
	}
}

// webhookEvent is the minimal envelope of a provider event. Only the fields
// the reconciler reads are declared; everything else is ignored.
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// eventCheckoutSession is the data.object of checkout.session.completed.
type eventCheckoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// eventSubscription is the data.object of customer.subscription.* events.
type eventSubscription struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// priceID returns the first line item's price ID, or "".
func (s *eventSubscription) priceID() string {
	if len(s.Items.Data) == 0 {
		return ""
	}
	return s.Items.Data[0].Price.ID
}

// eventInvoice is the data.object of invoice.paid / invoice.payment_failed.
type eventInvoice struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

// Process parses and applies one verified webhook payload.
func (r *Reconciler) Process(ctx context.Context, payload []byte) error {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.WarnContext(ctx, "dropping malformed webhook payload", "error", err)
		r.count(ctx, types.MetricWebhookIgnored, map[string]string{types.DimEventType: "malformed"})
		return nil
	}

	logger := r.logger.With("event_id", event.ID, "event_type", event.Type)

	var err error
	switch event.Type {
	case external.EventStripeCheckoutCompleted:
		err = r.handleCheckoutCompleted(ctx, logger, event.Data.Object)
	case external.EventStripeInvoicePaid:
		err = r.handleInvoicePaid(ctx, logger, event.Data.Object)
	case external.EventStripePaymentFailed:
		err = r.handlePaymentFailed(ctx, logger, event.Data.Object)
	case external.EventStripeSubUpdated:
		err = r.handleSubscriptionUpdated(ctx, logger, event.Data.Object)
	case external.EventStripeSubDeleted:
		err = r.handleSubscriptionDeleted(ctx, logger, event.Data.Object)
	default:
		logger.DebugContext(ctx, "ignoring unhandled webhook event type")
		r.count(ctx, types.MetricWebhookIgnored, map[string]string{types.DimEventType: event.Type})
		return nil
	}

	if err != nil {
		logger.ErrorContext(ctx, "webhook reconciliation failed", "error", err)
		return err
	}

	r.count(ctx, types.MetricWebhookProcessed, map[string]string{types.DimEventType: event.Type})
	return nil
}

// handleCheckoutCompleted activates the purchased tier. The session only
// carries the subscription ID, so the subscription is fetched to resolve
// price, status and period boundaries.
func (r *Reconciler) handleCheckoutCompleted(ctx context.Context, logger *slog.Logger, object json.RawMessage) error {
	var session eventCheckoutSession
	if err := json.Unmarshal(object, &session); err != nil {
		logger.WarnContext(ctx, "dropping checkout event with malformed object", "error", err)
		return nil
	}

	userID := session.Metadata[external.MetaUserID]
	if userID == "" {
		userID = session.ClientReferenceID
	}
	if userID == "" {
		logger.WarnContext(ctx, "dropping checkout event without user reference", "session_id", session.ID)
		return nil
	}
	if session.Subscription == "" {
		logger.WarnContext(ctx, "dropping checkout event without subscription", "session_id", session.ID)
		return nil
	}

	sub, err := r.billing.GetSubscriptionByID(ctx, session.Subscription)
	if err != nil {
		return err
	}

	tier := r.resolveTier(logger, sub.Metadata[external.MetaTier], sub.PriceID)
	if tier == "" {
		tier = types.PlanTier(session.Metadata[external.MetaTier])
	}
	if !tier.Valid() {
		logger.WarnContext(ctx, "dropping checkout event with unresolvable tier",
			"price_id", sub.PriceID, "session_id", session.ID)
		return nil
	}

	if _, err := r.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	patch := types.SubscriptionPatch{
		Tier:                 &tier,
		StripeSubscriptionID: &sub.ID,
		Status:               &sub.Status,
		CurrentPeriodStart:   timePtr(sub.PeriodStart),
		CurrentPeriodEnd:     timePtr(sub.PeriodEnd),
	}
	if session.Customer != "" {
		patch.StripeCustomerID = &session.Customer
	}
	if sub.PriceID != "" {
		patch.StripePriceID = &sub.PriceID
	}

	if _, err := r.store.Update(ctx, userID, patch); err != nil {
		return err
	}

	logger.InfoContext(ctx, "checkout completed", "user_id", userID, "tier", tier)
	return nil
}

// handleInvoicePaid acknowledges a successful renewal charge. The event is
// informational only: status, tier and period boundaries are driven by
// customer.subscription.updated, which the provider sends alongside every
// renewal. Writing state from the invoice as well would let a late or
// replayed delivery re-activate a subscription that has since been canceled.
func (r *Reconciler) handleInvoicePaid(ctx context.Context, logger *slog.Logger, object json.RawMessage) error {
	invoice, userID, ok := r.parseInvoice(ctx, logger, object)
	if !ok {
		return nil
	}

	logger.InfoContext(ctx, "invoice paid",
		"invoice_id", invoice.ID,
		"subscription_id", invoice.Subscription,
		"user_id", userID,
	)
	return nil
}

// handlePaymentFailed marks the subscription past_due. Entitlements are not
// revoked here; revocation arrives later as subscription.updated or .deleted
// once the provider gives up on collection.
func (r *Reconciler) handlePaymentFailed(ctx context.Context, logger *slog.Logger, object json.RawMessage) error {
	invoice, userID, ok := r.parseInvoice(ctx, logger, object)
	if !ok {
		return nil
	}

	if userID == "" {
		sub, err := r.billing.GetSubscriptionByID(ctx, invoice.Subscription)
		if err != nil {
			return err
		}
		userID = sub.Metadata[external.MetaUserID]
	}
	if userID == "" {
		logger.WarnContext(ctx, "dropping invoice.payment_failed without user metadata", "invoice_id", invoice.ID)
		return nil
	}

	if _, err := r.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	status := types.SubStatusPastDue
	if _, err := r.store.Update(ctx, userID, types.SubscriptionPatch{Status: &status}); err != nil {
		return err
	}

	logger.InfoContext(ctx, "payment failed, subscription marked past_due", "user_id", userID)
	return nil
}

// handleSubscriptionUpdated syncs tier, price, status and period from the
// event object. Plan changes made in the billing portal arrive here.
func (r *Reconciler) handleSubscriptionUpdated(ctx context.Context, logger *slog.Logger, object json.RawMessage) error {
	var sub eventSubscription
	if err := json.Unmarshal(object, &sub); err != nil {
		logger.WarnContext(ctx, "dropping subscription.updated with malformed object", "error", err)
		return nil
	}

	userID := sub.Metadata[external.MetaUserID]
	if userID == "" {
		logger.WarnContext(ctx, "dropping subscription.updated without user metadata", "subscription_id", sub.ID)
		return nil
	}

	if _, err := r.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	status := external.MapSubscriptionStatus(sub.Status)
	patch := types.SubscriptionPatch{
		Status:               &status,
		StripeSubscriptionID: &sub.ID,
		CurrentPeriodStart:   unixPtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixPtr(sub.CurrentPeriodEnd),
	}
	if priceID := sub.priceID(); priceID != "" {
		patch.StripePriceID = &priceID
	}
	if tier := r.resolveTier(logger, sub.Metadata[external.MetaTier], sub.priceID()); tier.Valid() {
		patch.Tier = &tier
	}

	if _, err := r.store.Update(ctx, userID, patch); err != nil {
		return err
	}

	logger.InfoContext(ctx, "subscription updated", "user_id", userID, "status", status)
	return nil
}

// handleSubscriptionDeleted downgrades the user to free and clears the
// subscription references. The customer reference is kept so a future
// checkout reuses the same provider customer.
func (r *Reconciler) handleSubscriptionDeleted(ctx context.Context, logger *slog.Logger, object json.RawMessage) error {
	var sub eventSubscription
	if err := json.Unmarshal(object, &sub); err != nil {
		logger.WarnContext(ctx, "dropping subscription.deleted with malformed object", "error", err)
		return nil
	}

	userID := sub.Metadata[external.MetaUserID]
	if userID == "" {
		logger.WarnContext(ctx, "dropping subscription.deleted without user metadata", "subscription_id", sub.ID)
		return nil
	}

	if _, err := r.store.GetOrCreate(ctx, userID); err != nil {
		return err
	}

	free := types.PlanFree
	patch := types.SubscriptionPatch{
		Tier:              &free,
		ClearSubscription: true,
	}
	if _, err := r.store.Update(ctx, userID, patch); err != nil {
		return err
	}

	logger.InfoContext(ctx, "subscription deleted, user downgraded to free", "user_id", userID)
	return nil
}

// parseInvoice decodes an invoice object and extracts the user reference
// from subscription metadata when present. ok is false when the event should
// be dropped.
func (r *Reconciler) parseInvoice(ctx context.Context, logger *slog.Logger, object json.RawMessage) (invoice eventInvoice, userID string, ok bool) {
	if err := json.Unmarshal(object, &invoice); err != nil {
		logger.WarnContext(ctx, "dropping invoice event with malformed object", "error", err)
		return invoice, "", false
	}
	if invoice.Subscription == "" {
		// One-off invoices carry no subscription; nothing to reconcile.
		logger.DebugContext(ctx, "ignoring invoice event without subscription", "invoice_id", invoice.ID)
		return invoice, "", false
	}
	return invoice, invoice.SubscriptionDetails.Metadata[external.MetaUserID], true
}

// resolveTier picks the tier from subscription metadata when valid, falling
// back to the configured price mapping. Returns "" when neither resolves.
func (r *Reconciler) resolveTier(logger *slog.Logger, metaTier string, priceID string) types.PlanTier {
	if tier := types.PlanTier(metaTier); tier.Valid() {
		return tier
	}
	if priceID != "" {
		if tier, ok := r.tiers.TierForPrice(priceID); ok {
			return tier
		}
	}
	return ""
}

func (r *Reconciler) count(ctx context.Context, name string, dims map[string]string) {
	if r.metrics != nil {
		r.metrics.Count(ctx, name, dims)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() || t.Unix() == 0 {
		return nil
	}
	return &t
}

func unixPtr(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
