package models

// TaxRateDenominator is the POS fixed-point scale for tax rates: 100% == 10,000,000.
const TaxRateDenominator int64 = 10_000_000

type TaxRate struct {
	ID              int64   `json:"id" db:"id"`
	MerchantID      int64   `json:"idcomercio" db:"idcomercio"`
	CloverTaxRateID *string `json:"clover_tax_rate_id" db:"clover_tax_rate_id"`
	Name            *string `json:"nombre" db:"nombre"`
	Rate            float64 `json:"rate" db:"rate"` // numerator over TaxRateDenominator
	IsDefault       bool    `json:"is_default" db:"is_default"`
	IsActive        bool    `json:"is_active" db:"is_active"`
}

// DisplayName returns the rate name or "Tax".
func (t *TaxRate) DisplayName() string {
	if t.Name == nil || *t.Name == "" {
		return "Tax"
	}
	return *t.Name
}

type ProductTaxLink struct {
	ProductID int64 `json:"idproducto" db:"idproducto"`
	TaxRateID int64 `json:"idtaxrate" db:"idtaxrate"`
}
