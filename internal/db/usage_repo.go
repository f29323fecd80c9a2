package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"larder/internal/types"
)

// usageColumns is the canonical column list scanned into a types.UsageLimits.
const usageColumns = `id, user_id, month, receipt_scans, ai_calls,
	voice_sessions, created_at, updated_at`

// UsageRepo provides data access for the usage_limits table, keyed by
// (user_id, month) with month as a YYYY-MM string.
//
// Key invariants:
//   - Counters only move through Increment, an atomic
//     increment-and-return-new-value at the storage layer; the application
//     never does read-modify-write, so concurrent increments are never lost.
//   - Rows are created on first use within a month and never deleted.
type UsageRepo struct {
	db DBTX
}

// NewUsageRepo creates a new UsageRepo backed by the given database
// connection (pool or transaction).
func NewUsageRepo(db DBTX) *UsageRepo {
	return &UsageRepo{db: db}
}

// GetOrCreate returns the usage row for the (user, month) pair, inserting a
// zeroed row if none exists. Follows the same insert-or-re-read pattern as
// SubscriptionRepo.GetOrCreate.
func (r *UsageRepo) GetOrCreate(ctx context.Context, userID, month string) (*types.UsageLimits, error) {
	if userID == "" || month == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "user id and month are required", nil)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO usage_limits (id, user_id, month)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, month) DO NOTHING
		 RETURNING `+usageColumns,
		uuid.NewString(), userID, month,
	)

	usage, err := scanUsage(row)
	if err == nil {
		return usage, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert usage row", err)
	}

	row = r.db.QueryRow(ctx,
		`SELECT `+usageColumns+`
		 FROM usage_limits
		 WHERE user_id = $1 AND month = $2`,
		userID, month,
	)
	usage, err = scanUsage(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read usage row", err)
	}
	return usage, nil
}

// Increment atomically advances the named counter by one for the
// (user, month) pair and returns the new value. The upsert creates the
// month's row on first use, so callers never need a prior GetOrCreate.
//
// Linearizability of a single counter comes from the database: the
// DO UPDATE arm reads and writes the column in one statement.
func (r *UsageRepo) Increment(ctx context.Context, userID, month string, counter types.UsageCounter) (int64, error) {
	if !counter.Valid() {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidField,
			fmt.Sprintf("unknown usage counter %q", counter),
			nil,
		)
	}

	// The column name is interpolated, not parameterized; it is constrained
	// to the UsageCounter enum above.
	col := string(counter)
	query := fmt.Sprintf(
		`INSERT INTO usage_limits (id, user_id, month, %[1]s)
		 VALUES ($1, $2, $3, 1)
		 ON CONFLICT (user_id, month) DO UPDATE
		 SET %[1]s = usage_limits.%[1]s + 1,
		     updated_at = NOW()
		 RETURNING %[1]s`,
		col,
	)

	var newValue int64
	err := r.db.QueryRow(ctx, query, uuid.NewString(), userID, month).Scan(&newValue)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to increment usage counter", err)
	}

	return newValue, nil
}

// scanUsage scans one row into a UsageLimits.
func scanUsage(row pgx.Row) (*types.UsageLimits, error) {
	var u types.UsageLimits
	err := row.Scan(
		&u.ID,
		&u.UserID,
		&u.Month,
		&u.ReceiptScans,
		&u.AICalls,
		&u.VoiceSessions,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
