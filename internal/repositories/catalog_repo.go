package repositories

import (
	"context"
	"fmt"
	"math"

	"findixi/internal/models"
)

const (
	menusTable          = "menus"
	productsTable       = "productos"
	modifierGroupsTable = "producto_opcion_grupos"
	modifierItemsTable  = "producto_opcion_items"
)

type CatalogRepository interface {
	MenuIDs(ctx context.Context, merchantID int64) ([]int64, error)
	ProductsByIDs(ctx context.Context, menuIDs, productIDs []int64) (map[int64]*models.Product, error)
	ModifiersByIDs(ctx context.Context, modifierIDs []int64) (map[int64]*models.ModifierItem, error)
	ProductIDsByCloverItems(ctx context.Context, merchantID int64, cloverItemIDs []string) (map[string]int64, error)
}

type catalogRepo struct {
	db     Querier
	schema *SchemaAdapter
}

func NewCatalogRepo(db Querier, schema *SchemaAdapter) CatalogRepository {
	return &catalogRepo{db: db, schema: schema}
}

func (r *catalogRepo) MenuIDs(ctx context.Context, merchantID int64) ([]int64, error) {
	merchantCol := r.schema.ResolveColumn(ctx, menusTable, "idComercio", "idcomercio")
	query := fmt.Sprintf(`SELECT id FROM menus WHERE %s = $1`, quote(merchantCol))

	rows, err := r.db.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load menus: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan menu: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProductsByIDs returns the requested products that belong to one of menuIDs.
// A NULL price is reported as NaN so price validation rejects it.
func (r *catalogRepo) ProductsByIDs(ctx context.Context, menuIDs, productIDs []int64) (map[int64]*models.Product, error) {
	menuCol := r.schema.ResolveColumn(ctx, productsTable, "idMenu", "idmenu")
	query := fmt.Sprintf(`
		SELECT id, %[1]s, nombre, precio, clover_item_id
		FROM productos
		WHERE id = ANY($1) AND %[1]s = ANY($2)
	`, quote(menuCol))

	rows, err := r.db.Query(ctx, query, productIDs, menuIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	defer rows.Close()

	products := make(map[int64]*models.Product)
	for rows.Next() {
		p := &models.Product{}
		var price *float64
		if err := rows.Scan(&p.ID, &p.MenuID, &p.Name, &price, &p.CloverItemID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.Price = math.NaN()
		if price != nil {
			p.Price = *price
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// ModifiersByIDs loads modifier items together with the product and name of
// their group. Items whose group is gone are not returned.
func (r *catalogRepo) ModifiersByIDs(ctx context.Context, modifierIDs []int64) (map[int64]*models.ModifierItem, error) {
	mods := make(map[int64]*models.ModifierItem)
	if len(modifierIDs) == 0 {
		return mods, nil
	}
	groupCol := r.schema.ResolveColumn(ctx, modifierItemsTable, "idgrupo", "idGrupo")
	productCol := r.schema.ResolveColumn(ctx, modifierGroupsTable, "idproducto", "idProducto")
	query := fmt.Sprintf(`
		SELECT i.id, i.%s, i.nombre, i.precio_extra, i.clover_modifier_id, g.%s, g.nombre
		FROM producto_opcion_items i
		JOIN producto_opcion_grupos g ON g.id = i.%[1]s
		WHERE i.id = ANY($1)
	`, quote(groupCol), quote(productCol))

	rows, err := r.db.Query(ctx, query, modifierIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load modifiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := &models.ModifierItem{}
		var groupName *string
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Name, &m.ExtraPrice, &m.CloverModifierID, &m.ProductID, &groupName); err != nil {
			return nil, fmt.Errorf("failed to scan modifier: %w", err)
		}
		if groupName != nil {
			m.GroupName = *groupName
		}
		mods[m.ID] = m
	}
	return mods, rows.Err()
}

// ProductIDsByCloverItems maps POS item ids to the merchant's local product ids.
func (r *catalogRepo) ProductIDsByCloverItems(ctx context.Context, merchantID int64, cloverItemIDs []string) (map[string]int64, error) {
	out := make(map[string]int64)
	if len(cloverItemIDs) == 0 {
		return out, nil
	}
	merchantCol := r.schema.ResolveColumn(ctx, menusTable, "idComercio", "idcomercio")
	menuCol := r.schema.ResolveColumn(ctx, productsTable, "idMenu", "idmenu")
	query := fmt.Sprintf(`
		SELECT p.id, p.clover_item_id
		FROM productos p
		JOIN menus m ON m.id = p.%s
		WHERE m.%s = $1 AND p.clover_item_id = ANY($2)
	`, quote(menuCol), quote(merchantCol))

	rows, err := r.db.Query(ctx, query, merchantID, cloverItemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to map POS items to products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var itemID string
		if err := rows.Scan(&id, &itemID); err != nil {
			return nil, fmt.Errorf("failed to scan product mapping: %w", err)
		}
		out[itemID] = id
	}
	return out, rows.Err()
}
