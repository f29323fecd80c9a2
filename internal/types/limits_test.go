package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiniteLimit(t *testing.T) {
	l := Finite(5)

	assert.False(t, l.IsUnlimited())
	assert.True(t, l.Allows(0))
	assert.True(t, l.Allows(4))
	assert.False(t, l.Allows(5))
	assert.False(t, l.Allows(6))
}

func TestUnlimitedLimit(t *testing.T) {
	l := Unlimited()

	assert.True(t, l.IsUnlimited())
	assert.True(t, l.Allows(0))
	assert.True(t, l.Allows(1<<40))

	_, finite := l.Remaining(100)
	assert.False(t, finite, "unlimited limit has no remaining value")
}

func TestLimitRemaining(t *testing.T) {
	l := Finite(5)

	rem, finite := l.Remaining(3)
	require.True(t, finite)
	assert.Equal(t, int64(2), rem)

	// Overshoot clamps at zero rather than going negative.
	rem, finite = l.Remaining(9)
	require.True(t, finite)
	assert.Equal(t, int64(0), rem)
}

func TestLimitJSONRoundTrip(t *testing.T) {
	b, err := json.Marshal(Finite(50))
	require.NoError(t, err)
	assert.Equal(t, "50", string(b))

	b, err = json.Marshal(Unlimited())
	require.NoError(t, err)
	assert.Equal(t, "null", string(b), "unlimited serializes as null, never a sentinel number")

	var l Limit
	require.NoError(t, json.Unmarshal([]byte("null"), &l))
	assert.True(t, l.IsUnlimited())

	require.NoError(t, json.Unmarshal([]byte("7"), &l))
	assert.False(t, l.IsUnlimited())
	assert.Equal(t, int64(7), l.Value())
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-03", MonthKey(time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)))

	// Local time near a month boundary resolves in UTC.
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, "2026-02", MonthKey(time.Date(2026, 3, 1, 4, 0, 0, 0, loc)))
}

func TestAllowWithin(t *testing.T) {
	d := AllowWithin(Finite(5), 4)
	assert.True(t, d.Allowed)
	require.NotNil(t, d.Remaining)
	assert.Equal(t, int64(1), *d.Remaining)

	d = AllowWithin(Finite(5), 5)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Remaining)
	assert.Equal(t, int64(0), *d.Remaining)

	d = AllowWithin(Unlimited(), 1_000_000)
	assert.True(t, d.Allowed)
	assert.Nil(t, d.Remaining)
}

func TestPlanTierRank(t *testing.T) {
	assert.True(t, PlanPro.AtLeast(PlanFree))
	assert.True(t, PlanFamily.AtLeast(PlanPro))
	assert.False(t, PlanFree.AtLeast(PlanPro))
	assert.True(t, PlanPro.AtLeast(PlanPro))

	// Unknown tiers rank below free and never satisfy a floor.
	assert.False(t, PlanTier("platinum").AtLeast(PlanFree))
	assert.False(t, PlanTier("platinum").Valid())
}
