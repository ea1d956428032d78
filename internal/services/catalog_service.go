package services

import (
	"context"
	"sort"

	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"
)

// ResolvedLine is a cart line joined with its catalog rows.
type ResolvedLine struct {
	Item      models.CartItem
	Product   *models.Product
	Modifiers []*models.ModifierItem
}

// CatalogResolver maps cart lines onto the merchant's linked catalog.
type CatalogResolver struct {
	catalog repositories.CatalogRepository
}

func NewCatalogResolver(catalog repositories.CatalogRepository) *CatalogResolver {
	return &CatalogResolver{catalog: catalog}
}

// Resolve validates items against the merchant's catalog. Every product must
// belong to one of the merchant's menus and be linked to the POS; every
// modifier must belong to a group of the same product and be linked too.
func (r *CatalogResolver) Resolve(ctx context.Context, merchantID int64, items []models.CartItem) ([]ResolvedLine, error) {
	if len(items) == 0 {
		return nil, common.NewValidationError("items required", common.ErrInvalidItems)
	}
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return nil, common.NewValidationError("invalid items", common.ErrInvalidItems)
		}
	}

	menuIDs, err := r.catalog.MenuIDs(ctx, merchantID)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load menus", err)
	}
	if len(menuIDs) == 0 {
		return nil, common.NewValidationError("merchant has no menus configured", common.ErrInvalidItems)
	}

	productIDs := uniqueProductIDs(items)
	products, err := r.catalog.ProductsByIDs(ctx, menuIDs, productIDs)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load products", err)
	}
	var missing []int64
	for _, id := range productIDs {
		if _, ok := products[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, common.NewValidationError("products not found or not owned by merchant", common.ErrInvalidItems).
			WithDetail("missingProducts", missing)
	}

	modifierIDs := uniqueModifierIDs(items)
	modifiers, err := r.catalog.ModifiersByIDs(ctx, modifierIDs)
	if err != nil {
		return nil, common.NewPersistenceError("failed to load modifiers", err)
	}

	var unlinked []int64
	for _, id := range productIDs {
		if !products[id].IsLinked() {
			unlinked = append(unlinked, id)
		}
	}
	if len(unlinked) > 0 {
		return nil, common.NewValidationError("product not linked to POS catalog", common.ErrUnlinkedProduct).
			WithDetail("idProducto", unlinked)
	}

	lines := make([]ResolvedLine, 0, len(items))
	for _, item := range items {
		line := ResolvedLine{Item: item, Product: products[item.ProductID]}
		for _, modID := range item.ModifierIDs {
			mod, ok := modifiers[modID]
			if !ok || mod.ProductID != item.ProductID {
				return nil, common.NewValidationError("modifier does not belong to product", common.ErrInvalidModifier).
					WithDetail("idProducto", item.ProductID).
					WithDetail("modId", modID)
			}
			if !mod.IsLinked() {
				return nil, common.NewValidationError("modifier not linked to POS catalog", common.ErrUnlinkedModifier).
					WithDetail("modId", modID)
			}
			line.Modifiers = append(line.Modifiers, mod)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func uniqueProductIDs(items []models.CartItem) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, item := range items {
		if _, ok := seen[item.ProductID]; !ok {
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func uniqueModifierIDs(items []models.CartItem) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, item := range items {
		for _, id := range item.ModifierIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
