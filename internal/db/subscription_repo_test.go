package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larder/internal/types"
)

var subTestNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

// subscriptionRowValues builds a full fakeRow value set in scan order.
func subscriptionRowValues(userID string, tier types.PlanTier) []any {
	return []any{
		"sub-row-1", userID, tier,
		(*string)(nil), (*string)(nil), (*string)(nil),
		(*types.SubscriptionStatus)(nil),
		(*time.Time)(nil), (*time.Time)(nil),
		subTestNow, subTestNow,
	}
}

func TestSubscriptionGetOrCreateInsertsDefault(t *testing.T) {
	mock := &mockDBTX{rows: []pgx.Row{
		&fakeRow{values: subscriptionRowValues("u1", types.PlanFree)},
	}}
	repo := NewSubscriptionRepo(mock, nil)

	sub, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", sub.UserID)
	assert.Equal(t, types.PlanFree, sub.Tier)
	assert.Nil(t, sub.StripeCustomerID)

	require.Len(t, mock.queries, 1)
	assert.Contains(t, mock.queries[0], "ON CONFLICT (user_id) DO NOTHING")
	// New rows always start on the free tier.
	assert.Contains(t, mock.args[0], types.PlanFree)
	assert.Contains(t, mock.args[0], "u1")
}

func TestSubscriptionGetOrCreateLostRaceReReads(t *testing.T) {
	// Insert loses the race (RETURNING yields no row); the follow-up read
	// must return the winner's row without surfacing an error.
	mock := &mockDBTX{rows: []pgx.Row{
		&fakeRow{err: pgx.ErrNoRows},
		&fakeRow{values: subscriptionRowValues("u1", types.PlanPro)},
	}}
	repo := NewSubscriptionRepo(mock, nil)

	sub, err := repo.GetOrCreate(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, types.PlanPro, sub.Tier)

	require.Len(t, mock.queries, 2)
	assert.Contains(t, mock.queries[1], "WHERE user_id = $1")
}

func TestSubscriptionGetOrCreateRequiresUserID(t *testing.T) {
	repo := NewSubscriptionRepo(&mockDBTX{}, nil)

	_, err := repo.GetOrCreate(context.Background(), "")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestSubscriptionUpdateEmptyPatchRejected(t *testing.T) {
	repo := NewSubscriptionRepo(&mockDBTX{}, nil)

	_, err := repo.Update(context.Background(), "u1", types.SubscriptionPatch{})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestSubscriptionUpdateWritesOnlyPatchedFields(t *testing.T) {
	mock := &mockDBTX{rows: []pgx.Row{
		&fakeRow{values: subscriptionRowValues("u1", types.PlanPro)},
	}}
	repo := NewSubscriptionRepo(mock, nil)

	tier := types.PlanPro
	sub, err := repo.Update(context.Background(), "u1", types.SubscriptionPatch{Tier: &tier})
	require.NoError(t, err)
	assert.Equal(t, types.PlanPro, sub.Tier)

	require.Len(t, mock.queries, 1)
	assert.Contains(t, mock.queries[0], "tier = $2")
	assert.NotContains(t, mock.queries[0], "status =")
	assert.NotContains(t, mock.queries[0], "stripe_customer_id =")
	assert.Equal(t, []any{"u1", tier}, mock.args[0])
}

func TestSubscriptionUpdateClearSubscriptionNullsBillingColumns(t *testing.T) {
	mock := &mockDBTX{rows: []pgx.Row{
		&fakeRow{values: subscriptionRowValues("u1", types.PlanFree)},
	}}
	repo := NewSubscriptionRepo(mock, nil)

	tier := types.PlanFree
	_, err := repo.Update(context.Background(), "u1", types.SubscriptionPatch{
		Tier:              &tier,
		ClearSubscription: true,
	})
	require.NoError(t, err)

	query := mock.queries[0]
	assert.Contains(t, query, "stripe_subscription_id = NULL")
	assert.Contains(t, query, "stripe_price_id = NULL")
	assert.Contains(t, query, "status = NULL")
	assert.Contains(t, query, "current_period_start = NULL")
	assert.Contains(t, query, "current_period_end = NULL")
	// The customer reference survives cancellation.
	assert.NotContains(t, query, "stripe_customer_id = NULL")
}

func TestSubscriptionUpdateMissingRow(t *testing.T) {
	mock := &mockDBTX{rows: []pgx.Row{&fakeRow{err: pgx.ErrNoRows}}}
	repo := NewSubscriptionRepo(mock, nil)

	tier := types.PlanPro
	_, err := repo.Update(context.Background(), "ghost", types.SubscriptionPatch{Tier: &tier})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSetCustomerID(t *testing.T) {
	mock := &mockDBTX{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := NewSubscriptionRepo(mock, nil)

	err := repo.SetCustomerID(context.Background(), "u1", "cus_1")
	require.NoError(t, err)

	require.Len(t, mock.queries, 1)
	assert.Contains(t, mock.queries[0], "stripe_customer_id = $1")
	assert.Equal(t, []any{"cus_1", "u1"}, mock.args[0])
}

func TestSetCustomerIDMissingRow(t *testing.T) {
	mock := &mockDBTX{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := NewSubscriptionRepo(mock, nil)

	err := repo.SetCustomerID(context.Background(), "ghost", "cus_1")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}
