package db

import (
	"context"

	"larder/internal/types"
)

// InventoryDB provides the read-only inventory queries the entitlement gate
// needs. The inventory domain itself is owned elsewhere; this type exists so
// the gate's item-limit check has a concrete collaborator without pulling in
// the full inventory service.
type InventoryDB struct {
	db DBTX
}

// NewInventoryDB creates a new InventoryDB backed by the given database
// connection.
func NewInventoryDB(db DBTX) *InventoryDB {
	return &InventoryDB{db: db}
}

// CountItems returns the number of live inventory items owned by the user.
// Soft-deleted items do not consume plan capacity.
func (d *InventoryDB) CountItems(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := d.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM inventory_items
		 WHERE user_id = $1
		   AND deleted_at IS NULL`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count inventory items", err)
	}
	return count, nil
}
