// Package billing provides the tier catalog, the usage meter, and the
// webhook-driven reconciliation logic that keeps local entitlement state
// consistent with the payment provider.
package billing

import "larder/internal/types"

// TierCatalog defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type TierCatalog interface {
	// Limits returns the resource limits for the given tier.
	// For unknown tiers, returns the most restrictive (Free) limits
	// to fail safely.
	Limits(tier types.PlanTier) types.PlanLimits
}

// staticTierCatalog is a compile-time catalog backed by an in-memory map.
// It implements TierCatalog and is the standard implementation for
// production use.
type staticTierCatalog struct {
	limits map[types.PlanTier]types.PlanLimits
}

// tierDefaults defines the hardcoded tier limits.
//
//	| Tier   | Items     | Scans/mo | AI/mo     | Voice | Multi-device | Shared | Members |
//	|--------|-----------|----------|-----------|-------|--------------|--------|---------|
//	| Free   | 50        | 5        | 10        | No    | No           | No     | 1       |
//	| Pro    | unlimited | 100      | 200       | Yes   | Yes          | No     | 1       |
//	| Family | unlimited | 100      | unlimited | Yes   | Yes          | Yes    | 6       |
var tierDefaults = map[types.PlanTier]types.PlanLimits{
	types.PlanFree: {
		MaxItems:             types.Finite(50),
		ReceiptScansPerMonth: types.Finite(5),
		AICallsPerMonth:      types.Finite(10),
		VoiceAssistant:       false,
		MultiDevice:          false,
		SharedInventory:      false,
		MaxHouseholdMembers:  1,
	},
	types.PlanPro: {
		MaxItems:             types.Unlimited(),
		ReceiptScansPerMonth: types.Finite(100),
		AICallsPerMonth:      types.Finite(200),
		VoiceAssistant:       true,
		MultiDevice:          true,
		SharedInventory:      false,
		MaxHouseholdMembers:  1,
	},
	types.PlanFamily: {
		MaxItems:             types.Unlimited(),
		ReceiptScansPerMonth: types.Finite(100),
		AICallsPerMonth:      types.Unlimited(),
		VoiceAssistant:       true,
		MultiDevice:          true,
		SharedInventory:      true,
		MaxHouseholdMembers:  6,
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = tierDefaults[types.PlanFree]

// NewStaticTierCatalog returns a TierCatalog backed by the hardcoded tier
// limits. This is the standard production implementation; no database or
// external service is required.
func NewStaticTierCatalog() TierCatalog {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[types.PlanTier]types.PlanLimits, len(tierDefaults))
	for k, v := range tierDefaults {
		m[k] = v
	}
	return &staticTierCatalog{limits: m}
}

// Limits returns the resource limits for the given tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (c *staticTierCatalog) Limits(tier types.PlanTier) types.PlanLimits {
	if limits, ok := c.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
