package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"larder/internal/types"
)

// subscriptionColumns is the canonical column list scanned into a
// types.UserSubscription. Keep in sync with scanSubscription.
const subscriptionColumns = `id, user_id, tier, stripe_customer_id,
	stripe_subscription_id, stripe_price_id, status,
	current_period_start, current_period_end, created_at, updated_at`

// SubscriptionRepo provides data access for the user_subscriptions table
// (one row per user, unique on user_id).
//
// Key invariants:
//   - GetOrCreate never produces duplicate rows under concurrent first
//     access; the insert is idempotent on the user_id unique key and a
//     lost race resolves by re-reading the winner's row.
//   - Update applies only the fields present in the patch; it never merges
//     arbitrary JSON.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given
// database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// GetOrCreate returns the subscription row for userID, inserting a default
// free-tier row if none exists.
//
// The insert uses ON CONFLICT DO NOTHING with RETURNING: when another
// request wins the insert race, RETURNING yields no row and the method
// falls through to a plain read. Store-layer contention is resolved here
// and never surfaced to callers.
func (r *SubscriptionRepo) GetOrCreate(ctx context.Context, userID string) (*types.UserSubscription, error) {
	if userID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "user id is required", nil)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO user_subscriptions (id, user_id, tier)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO NOTHING
		 RETURNING `+subscriptionColumns,
		uuid.NewString(), userID, types.PlanFree,
	)

	sub, err := scanSubscription(row)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert default subscription", err)
	}

	// Row already existed (possibly inserted concurrently); read it.
	return r.getByUserID(ctx, userID)
}

// getByUserID reads the subscription row for userID.
func (r *SubscriptionRepo) getByUserID(ctx context.Context, userID string) (*types.UserSubscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM user_subscriptions
		 WHERE user_id = $1`,
		userID,
	)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read subscription", err)
	}
	return sub, nil
}

// Update applies a partial update to the user's subscription row and returns
// the updated row. Only the fields set on the patch are written; an empty
// patch is rejected. Fails with not_found_subscription when no row exists.
func (r *SubscriptionRepo) Update(ctx context.Context, userID string, patch types.SubscriptionPatch) (*types.UserSubscription, error) {
	if patch.IsEmpty() {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "subscription patch is empty", nil)
	}

	setClauses := []string{"updated_at = NOW()"}
	args := []any{userID}

	add := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Tier != nil {
		add("tier", *patch.Tier)
	}
	if patch.StripeCustomerID != nil {
		add("stripe_customer_id", *patch.StripeCustomerID)
	}
	if patch.StripeSubscriptionID != nil {
		add("stripe_subscription_id", *patch.StripeSubscriptionID)
	}
	if patch.StripePriceID != nil {
		add("stripe_price_id", *patch.StripePriceID)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.CurrentPeriodStart != nil {
		add("current_period_start", *patch.CurrentPeriodStart)
	}
	if patch.CurrentPeriodEnd != nil {
		add("current_period_end", *patch.CurrentPeriodEnd)
	}
	if patch.ClearSubscription {
		setClauses = append(setClauses,
			"stripe_subscription_id = NULL",
			"stripe_price_id = NULL",
			"status = NULL",
			"current_period_start = NULL",
			"current_period_end = NULL",
		)
	}

	query := fmt.Sprintf(
		`UPDATE user_subscriptions
		 SET %s
		 WHERE user_id = $1
		 RETURNING %s`,
		strings.Join(setClauses, ", "),
		subscriptionColumns,
	)

	row := r.db.QueryRow(ctx, query, args...)
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}

	return sub, nil
}

// SetCustomerID persists the provider customer reference for the user.
// Called from checkout initiation; the only subscription mutation that does
// not originate from a webhook.
func (r *SubscriptionRepo) SetCustomerID(ctx context.Context, userID string, customerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_subscriptions
		 SET stripe_customer_id = $1,
		     updated_at = NOW()
		 WHERE user_id = $2`,
		customerID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set customer id", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// scanSubscription scans one row into a UserSubscription.
func scanSubscription(row pgx.Row) (*types.UserSubscription, error) {
	var sub types.UserSubscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Tier,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.StripePriceID,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
