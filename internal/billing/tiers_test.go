package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"larder/internal/types"
)

func TestTierCatalogFree(t *testing.T) {
	catalog := NewStaticTierCatalog()
	limits := catalog.Limits(types.PlanFree)

	assert.Equal(t, int64(50), limits.MaxItems.Value())
	assert.Equal(t, int64(5), limits.ReceiptScansPerMonth.Value())
	assert.Equal(t, int64(10), limits.AICallsPerMonth.Value())
	assert.False(t, limits.VoiceAssistant)
	assert.False(t, limits.MultiDevice)
	assert.False(t, limits.SharedInventory)
	assert.Equal(t, 1, limits.MaxHouseholdMembers)
}

func TestTierCatalogPro(t *testing.T) {
	catalog := NewStaticTierCatalog()
	limits := catalog.Limits(types.PlanPro)

	assert.True(t, limits.MaxItems.IsUnlimited())
	assert.Equal(t, int64(100), limits.ReceiptScansPerMonth.Value())
	assert.Equal(t, int64(200), limits.AICallsPerMonth.Value())
	assert.True(t, limits.VoiceAssistant)
	assert.True(t, limits.MultiDevice)
	assert.False(t, limits.SharedInventory)
}

func TestTierCatalogFamily(t *testing.T) {
	catalog := NewStaticTierCatalog()
	limits := catalog.Limits(types.PlanFamily)

	assert.True(t, limits.MaxItems.IsUnlimited())
	assert.Equal(t, int64(100), limits.ReceiptScansPerMonth.Value())
	assert.True(t, limits.AICallsPerMonth.IsUnlimited())
	assert.True(t, limits.VoiceAssistant)
	assert.True(t, limits.SharedInventory)
	assert.Equal(t, 6, limits.MaxHouseholdMembers)
}

func TestTierCatalogUnknownFallsBackToFree(t *testing.T) {
	catalog := NewStaticTierCatalog()
	limits := catalog.Limits(types.PlanTier("platinum"))

	assert.Equal(t, catalog.Limits(types.PlanFree), limits)
}
