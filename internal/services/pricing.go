package services

import (
	"fmt"
	"math"

	"findixi/internal/common"
	"findixi/internal/models"

	"github.com/shopspring/decimal"
)

var (
	hundred         = decimal.NewFromInt(100)
	rateDenominator = decimal.NewFromInt(models.TaxRateDenominator)
	maxMinor        = decimal.NewFromInt(math.MaxInt64)
)

// PricedLine is a resolved line with its charged unit price and taxes.
type PricedLine struct {
	ResolvedLine
	UnitMinor int64
	LineMinor int64
	TaxRates  []models.TaxRate
	TaxMinor  int64
}

// UnitPrice is the unit price actually charged, base plus modifier extras.
func (l *PricedLine) UnitPrice() decimal.Decimal {
	return decimal.New(l.UnitMinor, -2)
}

// PricedCart holds every line and the cart totals in minor units.
type PricedCart struct {
	Lines         []PricedLine
	SubtotalMinor int64
	TaxMinor      int64
}

func (c *PricedCart) TotalMinor() int64 {
	return c.SubtotalMinor + c.TaxMinor
}

func (c *PricedCart) Subtotal() decimal.Decimal { return decimal.New(c.SubtotalMinor, -2) }
func (c *PricedCart) Tax() decimal.Decimal      { return decimal.New(c.TaxMinor, -2) }
func (c *PricedCart) Total() decimal.Decimal    { return decimal.New(c.TotalMinor(), -2) }

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// minorUnits rounds an amount to cents.
func minorUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(hundred).Round(0)
}

// LineTaxMinor returns round(lineMinor * sum(rates) / denominator).
func LineTaxMinor(lineMinor int64, rates []models.TaxRate) int64 {
	return lineTax(decimal.NewFromInt(lineMinor), rates).IntPart()
}

func lineTax(lineMinor decimal.Decimal, rates []models.TaxRate) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range rates {
		sum = sum.Add(decimal.NewFromFloat(r.Rate))
	}
	return lineMinor.Mul(sum).Div(rateDenominator).Round(0)
}

// minorInRange reports whether amount fits the int64 minor-unit fields.
func minorInRange(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(maxMinor)
}

// PriceCart prices every line. Any non-finite base or extra price, or an
// amount that does not fit in minor units, fails the whole cart before
// anything is sent to the POS.
func PriceCart(lines []ResolvedLine, taxes *TaxResolver) (*PricedCart, error) {
	cart := &PricedCart{Lines: make([]PricedLine, 0, len(lines))}
	subtotal, tax := decimal.Zero, decimal.Zero
	for _, line := range lines {
		if !isFinite(line.Product.Price) {
			return nil, common.NewValidationError(fmt.Sprintf("invalid price for product %d", line.Product.ID), common.ErrInvalidPrice).
				WithDetail("idProducto", line.Product.ID)
		}
		unit := decimal.NewFromFloat(line.Product.Price)
		for _, mod := range line.Modifiers {
			extra := mod.Extra()
			if !isFinite(extra) {
				return nil, common.NewValidationError(fmt.Sprintf("invalid price for modifier %d", mod.ID), common.ErrInvalidPrice).
					WithDetail("modId", mod.ID)
			}
			unit = unit.Add(decimal.NewFromFloat(extra))
		}

		unitMinor := minorUnits(unit)
		lineMinor := unitMinor.Mul(decimal.NewFromInt(int64(line.Item.Quantity)))
		rates := taxes.RatesFor(line.Product.ID)
		taxMinor := lineTax(lineMinor, rates)

		subtotal = subtotal.Add(lineMinor)
		tax = tax.Add(taxMinor)
		if !minorInRange(lineMinor) || !minorInRange(taxMinor) || !minorInRange(subtotal.Add(tax)) {
			return nil, common.NewValidationError(fmt.Sprintf("order amount out of range for product %d", line.Product.ID), common.ErrInvalidPrice).
				WithDetail("idProducto", line.Product.ID)
		}

		cart.Lines = append(cart.Lines, PricedLine{
			ResolvedLine: line,
			UnitMinor:    unitMinor.IntPart(),
			LineMinor:    lineMinor.IntPart(),
			TaxRates:     rates,
			TaxMinor:     taxMinor.IntPart(),
		})
	}
	cart.SubtotalMinor = subtotal.IntPart()
	cart.TaxMinor = tax.IntPart()
	return cart, nil
}
