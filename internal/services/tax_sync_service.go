package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"findixi/internal/clover"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"
)

// TaxSyncResult counts what one sync wrote.
type TaxSyncResult struct {
	TaxRates        int `json:"taxRates"`
	ProductMappings int `json:"productMappings"`
}

// TaxSyncService mirrors a merchant's POS tax rates and their item
// assignments into local storage.
type TaxSyncService struct {
	connections repositories.ConnectionRepository
	catalog     repositories.CatalogRepository
	taxes       repositories.TaxRepository
	tokens      *TokenManager
	pos         POSClient
}

func NewTaxSyncService(connections repositories.ConnectionRepository, catalog repositories.CatalogRepository,
	taxes repositories.TaxRepository, tokens *TokenManager, pos POSClient) *TaxSyncService {
	return &TaxSyncService{connections: connections, catalog: catalog, taxes: taxes, tokens: tokens, pos: pos}
}

// Sync upserts the merchant's POS tax rates and rebuilds the product links
// of every stored rate from each rate's item list.
func (s *TaxSyncService) Sync(ctx context.Context, merchantID int64) (*TaxSyncResult, error) {
	if merchantID <= 0 {
		return nil, common.NewValidationError("idComercio required", nil)
	}
	conn, err := s.connections.GetByMerchantID(ctx, merchantID)
	if err != nil {
		if errors.Is(err, common.ErrConnectionNotFound) {
			return nil, common.NewNotFoundError("POS is not connected for this merchant", err)
		}
		return nil, common.NewPersistenceError("failed to load POS connection", err)
	}
	mid := conn.PosMerchantID()
	if mid == "" {
		return nil, common.NewValidationError("POS connection has no merchant id, reconnect the account", nil)
	}

	session, err := s.tokens.Begin(ctx, conn)
	if err != nil {
		return nil, err
	}

	var remote []map[string]any
	err = session.Do(ctx, func(token string) error {
		var err error
		remote, err = s.pos.ListTaxRates(ctx, token, mid)
		return err
	})
	if err != nil {
		return nil, remoteError("could not list tax rates on the POS", err)
	}

	rates := make([]models.TaxRate, 0, len(remote))
	for _, obj := range remote {
		if rate, ok := taxRateFromPOS(merchantID, obj); ok {
			rates = append(rates, rate)
		}
	}
	if err := s.taxes.UpsertRates(ctx, merchantID, rates); err != nil {
		return nil, common.NewPersistenceError("failed to store tax rates", err)
	}

	stored, err := s.taxes.RatesByMerchant(ctx, merchantID)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load tax rates", err)
	}
	localByRemote := make(map[string]int64, len(stored))
	storedIDs := make([]int64, 0, len(stored))
	for _, t := range stored {
		storedIDs = append(storedIDs, t.ID)
		if t.CloverTaxRateID != nil {
			localByRemote[*t.CloverTaxRateID] = t.ID
		}
	}

	itemsByRate := make(map[int64][]string)
	var allItems []string
	for _, rate := range rates {
		localID, ok := localByRemote[*rate.CloverTaxRateID]
		if !ok {
			continue
		}
		var itemIDs []string
		err := session.Do(ctx, func(token string) error {
			var err error
			itemIDs, err = s.pos.TaxRateItemIDs(ctx, token, mid, *rate.CloverTaxRateID)
			return err
		})
		if err != nil {
			return nil, remoteError(fmt.Sprintf("could not list items of tax rate %s", *rate.CloverTaxRateID), err)
		}
		itemsByRate[localID] = itemIDs
		allItems = append(allItems, itemIDs...)
	}

	products, err := s.catalog.ProductIDsByCloverItems(ctx, merchantID, allItems)
	if err != nil {
		return nil, common.NewPersistenceError("failed to map POS items to products", err)
	}
	// POS item lists can repeat an item, and several items can map to one
	// product; the link table holds each pair once.
	var links []models.ProductTaxLink
	seen := make(map[models.ProductTaxLink]struct{})
	for _, localID := range storedIDs {
		for _, itemID := range itemsByRate[localID] {
			productID, ok := products[itemID]
			if !ok {
				continue
			}
			link := models.ProductTaxLink{ProductID: productID, TaxRateID: localID}
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			links = append(links, link)
		}
	}
	if err := s.taxes.ReplaceProductLinks(ctx, storedIDs, links); err != nil {
		return nil, common.NewPersistenceError("failed to store product tax links", err)
	}

	log.Printf("DEBUG: [clover-tax-rates] merchant %d synced %d rates, %d product links", merchantID, len(rates), len(links))
	return &TaxSyncResult{TaxRates: len(rates), ProductMappings: len(links)}, nil
}

// taxRateFromPOS maps a POS tax rate object. Rates without an id are skipped.
func taxRateFromPOS(merchantID int64, obj map[string]any) (models.TaxRate, bool) {
	id := clover.StringField(obj, "id")
	if id == "" {
		return models.TaxRate{}, false
	}
	rate := models.TaxRate{
		MerchantID:      merchantID,
		CloverTaxRateID: &id,
		Rate:            math.NaN(),
		IsDefault:       boolField(obj, false, "isDefault", "default"),
		IsActive:        boolField(obj, true, "isActive", "active"),
	}
	if name := clover.StringField(obj, "name"); name != "" {
		rate.Name = &name
	}
	if f, err := strconv.ParseFloat(clover.StringField(obj, "rate"), 64); err == nil {
		rate.Rate = f
	}
	return rate, true
}

func boolField(obj map[string]any, fallback bool, keys ...string) bool {
	for _, k := range keys {
		if v, ok := obj[k].(bool); ok {
			return v
		}
	}
	return fallback
}
