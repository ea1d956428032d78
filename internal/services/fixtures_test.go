package services

import (
	"testing"
	"time"

	"findixi/internal/clover"
	"findixi/internal/models"
	"findixi/testhelpers"
)

const (
	testMerchantID    int64 = 7
	testPOSMerchantID       = "MERCH1"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// testConnection returns a connection whose token is valid for an hour.
func testConnection(now time.Time) *models.Connection {
	return &models.Connection{
		ID:               1,
		MerchantID:       testMerchantID,
		CloverMerchantID: strPtr(testPOSMerchantID),
		AccessToken:      "valid-token",
		RefreshToken:     strPtr("refresh-0"),
		ExpiresAt:        strPtr(now.Add(time.Hour).UTC().Format(time.RFC3339)),
	}
}

func burger() *models.Product {
	return &models.Product{ID: 100, MenuID: 10, Name: "Burger", Price: 10.00, CloverItemID: strPtr("ITEM100")}
}

func cheese() *models.ModifierItem {
	return &models.ModifierItem{
		ID: 200, GroupID: 20, Name: "Queso", ExtraPrice: floatPtr(1.50),
		CloverModifierID: strPtr("MOD200"), ProductID: 100, GroupName: "Extras",
	}
}

func defaultTax(rate float64) models.TaxRate {
	return models.TaxRate{ID: 1, MerchantID: testMerchantID, CloverTaxRateID: strPtr("TAX1"), Name: strPtr("IVU"), Rate: rate, IsDefault: true, IsActive: true}
}

// burgerCart is one burger with cheese, qty 2, and a default 10% tax.
func burgerCart(t *testing.T) *PricedCart {
	t.Helper()
	lines := []ResolvedLine{{
		Item:      models.CartItem{ProductID: 100, Quantity: 2, ModifierIDs: []int64{200}, Note: "sin cebolla"},
		Product:   burger(),
		Modifiers: []*models.ModifierItem{cheese()},
	}}
	cart, err := PriceCart(lines, NewTaxResolver([]models.TaxRate{defaultTax(1_000_000)}, nil))
	if err != nil {
		t.Fatalf("price cart: %v", err)
	}
	return cart
}

// posHarness is a fake POS with real clients pointed at it.
type posHarness struct {
	fake   *testhelpers.FakeClover
	client *clover.Client
	oauth  *clover.OAuthClient
}

func newPOSHarness(t *testing.T) *posHarness {
	t.Helper()
	fake := testhelpers.NewFakeClover()
	t.Cleanup(fake.Server.Close)
	return &posHarness{
		fake:   fake,
		client: clover.NewClient(fake.URL(), 5*time.Second),
		oauth:  clover.NewOAuthClient(fake.URL(), "client-id", 5*time.Second),
	}
}
