package services

import (
	"errors"
	"math"
	"testing"

	"findixi/internal/common"
	"findixi/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCart_BaseModifierAndDefaultTax(t *testing.T) {
	cart := burgerCart(t)

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(1150), cart.Lines[0].UnitMinor)
	assert.True(t, decimal.RequireFromString("11.50").Equal(cart.Lines[0].UnitPrice()))
	assert.Equal(t, int64(2300), cart.SubtotalMinor)
	assert.Equal(t, int64(230), cart.TaxMinor)
	assert.Equal(t, "23.00", cart.Subtotal().StringFixed(2))
	assert.Equal(t, "2.30", cart.Tax().StringFixed(2))
	assert.Equal(t, "25.30", cart.Total().StringFixed(2))
}

func TestPriceCart_Untaxed(t *testing.T) {
	lines := []ResolvedLine{{Item: models.CartItem{ProductID: 100, Quantity: 3}, Product: burger()}}
	cart, err := PriceCart(lines, NewTaxResolver(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), cart.TotalMinor())
	assert.Empty(t, cart.Lines[0].TaxRates)
}

func TestPriceCart_NullModifierExtraIsZero(t *testing.T) {
	mod := cheese()
	mod.ExtraPrice = nil
	lines := []ResolvedLine{{Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: burger(), Modifiers: []*models.ModifierItem{mod}}}
	cart, err := PriceCart(lines, NewTaxResolver(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cart.SubtotalMinor)
}

func TestPriceCart_NonFinitePrices(t *testing.T) {
	badProduct := burger()
	badProduct.Price = math.NaN()
	badMod := cheese()
	badMod.ExtraPrice = floatPtr(math.Inf(1))

	for name, line := range map[string]ResolvedLine{
		"product":  {Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: badProduct},
		"modifier": {Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: burger(), Modifiers: []*models.ModifierItem{badMod}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PriceCart([]ResolvedLine{line}, NewTaxResolver(nil, nil))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrInvalidPrice))
			assert.Equal(t, common.KindValidation, common.KindOf(err))
		})
	}
}

func TestLineTaxMinor_Rounding(t *testing.T) {
	rates := []models.TaxRate{{Rate: 1_050_000}, {Rate: 100_000}} // 10.5% + 1%
	// 999 * 0.115 = 114.885
	assert.Equal(t, int64(115), LineTaxMinor(999, rates))
	assert.Equal(t, int64(0), LineTaxMinor(999, nil))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1150), minorUnits(decimal.NewFromFloat(11.5)).IntPart())
	assert.Equal(t, int64(101), minorUnits(decimal.RequireFromString("1.005")).IntPart())
	assert.Equal(t, int64(30), minorUnits(decimal.NewFromFloat(0.1).Add(decimal.NewFromFloat(0.2))).IntPart())
}

func TestPriceCart_LargeQuantity(t *testing.T) {
	lines := []ResolvedLine{{Item: models.CartItem{ProductID: 100, Quantity: MaxItemQuantity}, Product: burger()}}
	cart, err := PriceCart(lines, NewTaxResolver([]models.TaxRate{defaultTax(1_000_000)}, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), cart.SubtotalMinor)
	assert.Equal(t, int64(1_000_000), cart.TaxMinor)
	assert.Equal(t, "110000.00", cart.Total().StringFixed(2))
}

func TestPriceCart_AmountOutOfRange(t *testing.T) {
	priced := func(price float64) *models.Product {
		p := burger()
		p.Price = price
		return p
	}

	for name, lines := range map[string][]ResolvedLine{
		"line overflows": {
			{Item: models.CartItem{ProductID: 100, Quantity: MaxItemQuantity}, Product: priced(1e15)},
		},
		"tax pushes total over": {
			{Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: priced(9e16)},
		},
		"subtotal overflows": {
			{Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: priced(5e16)},
			{Item: models.CartItem{ProductID: 100, Quantity: 1}, Product: priced(5e16)},
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := PriceCart(lines, NewTaxResolver([]models.TaxRate{defaultTax(1_000_000)}, nil))
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidPrice)
			assert.Equal(t, common.KindValidation, common.KindOf(err))
		})
	}
}
