package tier

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-cli/internal/model"
)

func boundaryTiers() []model.PriceTier {
	return []model.PriceTier{
		{MinQuantity: 1, MaxQuantity: model.Int64Ptr(9), UnitPrice: decimal.NewFromInt(1000)},
		{MinQuantity: 10, UnitPrice: decimal.NewFromInt(800)},
	}
}

func TestResolve_Boundaries(t *testing.T) {
	tests := []struct {
		qty  int64
		want int64
	}{
		{1, 1000},
		{9, 1000},
		{10, 800},
		{10_000, 800},
	}
	for _, tt := range tests {
		q, err := Resolve(tt.qty, boundaryTiers(), decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(tt.want).Equal(q.UnitPrice), "qty %d: got %s", tt.qty, q.UnitPrice)
		assert.False(t, q.Fallback)
	}
}

func TestResolve_EmptyTiersUseBasePrice(t *testing.T) {
	q, err := Resolve(5, nil, decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(500).Equal(q.UnitPrice))
	assert.True(t, decimal.NewFromInt(2500).Equal(q.TotalAmount))
	assert.Nil(t, q.Tier)
}

func TestResolve_TotalAmount(t *testing.T) {
	tiers := []model.PriceTier{{MinQuantity: 1, UnitPrice: decimal.RequireFromString("0.10")}}

	q, err := Resolve(3, tiers, decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "0.3", q.TotalAmount.String())
}

func TestResolve_BelowLowestTierFallsBackToHighest(t *testing.T) {
	tiers := []model.PriceTier{
		{MinQuantity: 5, MaxQuantity: model.Int64Ptr(9), UnitPrice: decimal.NewFromInt(100)},
		{MinQuantity: 10, UnitPrice: decimal.NewFromInt(90)},
	}

	q, err := Resolve(2, tiers, decimal.NewFromInt(120))
	require.NoError(t, err)
	assert.True(t, q.Fallback)
	assert.True(t, decimal.NewFromInt(90).Equal(q.UnitPrice))
	require.NotNil(t, q.Tier)
	assert.Equal(t, int64(10), q.Tier.MinQuantity)
}

func TestResolve_UnsortedInput(t *testing.T) {
	tiers := boundaryTiers()
	tiers[0], tiers[1] = tiers[1], tiers[0]

	q, err := Resolve(3, tiers, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1000).Equal(q.UnitPrice))
	// The caller's slice is left as given.
	assert.Equal(t, int64(10), tiers[0].MinQuantity)
}

func TestResolve_InvalidQuantity(t *testing.T) {
	for _, qty := range []int64{0, -3} {
		_, err := Resolve(qty, boundaryTiers(), decimal.Zero)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidQuantity))
	}
}
