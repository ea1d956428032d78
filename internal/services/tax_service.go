package services

import (
	"context"
	"math"

	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"
)

// TaxResolver answers which tax rates apply to each product of one request.
type TaxResolver struct {
	defaults  []models.TaxRate
	byProduct map[int64][]models.TaxRate
}

// LoadTaxResolver reads the merchant's rates and the explicit links of productIDs.
func LoadTaxResolver(ctx context.Context, taxes repositories.TaxRepository, merchantID int64, productIDs []int64) (*TaxResolver, error) {
	rates, err := taxes.RatesByMerchant(ctx, merchantID)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load tax rates", err)
	}
	links, err := taxes.LinksForProducts(ctx, productIDs)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load product tax rates", err)
	}
	return NewTaxResolver(rates, links), nil
}

// NewTaxResolver builds a resolver from the merchant's rates and product links.
// Links to rates outside rates are ignored.
func NewTaxResolver(rates []models.TaxRate, links []models.ProductTaxLink) *TaxResolver {
	byID := make(map[int64]models.TaxRate, len(rates))
	t := &TaxResolver{byProduct: make(map[int64][]models.TaxRate)}
	for _, rate := range rates {
		byID[rate.ID] = rate
		if rate.IsDefault && !math.IsNaN(rate.Rate) && !math.IsInf(rate.Rate, 0) {
			t.defaults = append(t.defaults, rate)
		}
	}
	for _, link := range links {
		if rate, ok := byID[link.TaxRateID]; ok {
			t.byProduct[link.ProductID] = append(t.byProduct[link.ProductID], rate)
		}
	}
	return t
}

// RatesFor returns the explicitly linked rates of productID, or the merchant
// defaults when it has none. Non-positive and non-finite rates are dropped,
// so the result may be empty.
func (t *TaxResolver) RatesFor(productID int64) []models.TaxRate {
	rates, ok := t.byProduct[productID]
	if !ok || len(rates) == 0 {
		rates = t.defaults
	}
	out := make([]models.TaxRate, 0, len(rates))
	for _, r := range rates {
		if r.Rate > 0 && !math.IsInf(r.Rate, 0) {
			out = append(out, r)
		}
	}
	return out
}
