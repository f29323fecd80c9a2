package types

import (
	"encoding/json"
	"fmt"
)

// Limit is a tagged ceiling: either a finite non-negative count or unlimited.
// The zero value is Finite(0). Unlimited is a distinct state, not a numeric
// sentinel, so any finite usage value is always within an unlimited ceiling.
type Limit struct {
	n         int64
	unlimited bool
}

// Finite returns a Limit with the given ceiling.
func Finite(n int64) Limit {
	return Limit{n: n}
}

// Unlimited returns the no-ceiling Limit.
func Unlimited() Limit {
	return Limit{unlimited: true}
}

// IsUnlimited reports whether the limit has no ceiling.
func (l Limit) IsUnlimited() bool {
	return l.unlimited
}

// Value returns the finite ceiling. It is only meaningful when
// IsUnlimited() is false.
func (l Limit) Value() int64 {
	return l.n
}

// Allows reports whether one more unit may be consumed at the given
// current usage, i.e. current < ceiling.
func (l Limit) Allows(current int64) bool {
	if l.unlimited {
		return true
	}
	return current < l.n
}

// Remaining returns max - current clamped at zero, and false when the limit
// is unlimited (remaining is unbounded).
func (l Limit) Remaining(current int64) (int64, bool) {
	if l.unlimited {
		return 0, false
	}
	rem := l.n - current
	if rem < 0 {
		rem = 0
	}
	return rem, true
}

// String renders the limit for logs.
func (l Limit) String() string {
	if l.unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", l.n)
}

// MarshalJSON renders a finite limit as a number and an unlimited limit as
// null, matching the API contract for tier-info responses.
func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return []byte("null"), nil
	}
	return json.Marshal(l.n)
}

// UnmarshalJSON accepts a number or null.
func (l *Limit) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Unlimited()
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*l = Finite(n)
	return nil
}

// PlanLimits defines the quantitative and boolean ceilings for one tier.
type PlanLimits struct {
	MaxItems             Limit `json:"max_items"`
	ReceiptScansPerMonth Limit `json:"receipt_scans_per_month"`
	AICallsPerMonth      Limit `json:"ai_calls_per_month"`
	VoiceAssistant       bool  `json:"voice_assistant"`
	MultiDevice          bool  `json:"multi_device"`
	SharedInventory      bool  `json:"shared_inventory"`
	MaxHouseholdMembers  int   `json:"max_household_members"`
}
