package repositories

import (
	"context"
	"fmt"
	"math"

	"findixi/internal/models"
)

const (
	taxRatesTable     = "clover_tax_rates"
	productTaxesTable = "producto_tax_rates"
)

type TaxRepository interface {
	RatesByMerchant(ctx context.Context, merchantID int64) ([]models.TaxRate, error)
	LinksForProducts(ctx context.Context, productIDs []int64) ([]models.ProductTaxLink, error)
	UpsertRates(ctx context.Context, merchantID int64, rates []models.TaxRate) error
	ReplaceProductLinks(ctx context.Context, rateIDs []int64, links []models.ProductTaxLink) error
}

type taxRepo struct {
	db     Database
	schema *SchemaAdapter
}

func NewTaxRepo(db Database, schema *SchemaAdapter) TaxRepository {
	return &taxRepo{db: db, schema: schema}
}

func (r *taxRepo) merchantColumn(ctx context.Context) string {
	return r.schema.ResolveColumn(ctx, taxRatesTable, "idcomercio", "idComercio")
}

func (r *taxRepo) linkColumns(ctx context.Context) (productCol, rateCol string) {
	productCol = r.schema.ResolveColumn(ctx, productTaxesTable, "idproducto", "idProducto")
	rateCol = r.schema.ResolveColumn(ctx, productTaxesTable, "idtaxrate", "idTaxRate")
	return productCol, rateCol
}

// RatesByMerchant returns every stored rate of the merchant. A NULL rate is
// reported as NaN.
func (r *taxRepo) RatesByMerchant(ctx context.Context, merchantID int64) ([]models.TaxRate, error) {
	query := fmt.Sprintf(`
		SELECT id, clover_tax_rate_id, nombre, rate, COALESCE(is_default, false)
		FROM clover_tax_rates
		WHERE %s = $1
		ORDER BY id
	`, quote(r.merchantColumn(ctx)))

	rows, err := r.db.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tax rates: %w", err)
	}
	defer rows.Close()

	var rates []models.TaxRate
	for rows.Next() {
		t := models.TaxRate{MerchantID: merchantID, IsActive: true}
		var rate *float64
		if err := rows.Scan(&t.ID, &t.CloverTaxRateID, &t.Name, &rate, &t.IsDefault); err != nil {
			return nil, fmt.Errorf("failed to scan tax rate: %w", err)
		}
		t.Rate = math.NaN()
		if rate != nil {
			t.Rate = *rate
		}
		rates = append(rates, t)
	}
	return rates, rows.Err()
}

func (r *taxRepo) LinksForProducts(ctx context.Context, productIDs []int64) ([]models.ProductTaxLink, error) {
	productCol, rateCol := r.linkColumns(ctx)
	query := fmt.Sprintf(`SELECT %[1]s, %[2]s FROM producto_tax_rates WHERE %[1]s = ANY($1)`, quote(productCol), quote(rateCol))

	rows, err := r.db.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load product tax links: %w", err)
	}
	defer rows.Close()

	var links []models.ProductTaxLink
	for rows.Next() {
		var l models.ProductTaxLink
		if err := rows.Scan(&l.ProductID, &l.TaxRateID); err != nil {
			return nil, fmt.Errorf("failed to scan product tax link: %w", err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// UpsertRates inserts or updates rates keyed by merchant and POS tax rate id.
func (r *taxRepo) UpsertRates(ctx context.Context, merchantID int64, rates []models.TaxRate) error {
	if len(rates) == 0 {
		return nil
	}
	merchantCol := quote(r.merchantColumn(ctx))
	query := fmt.Sprintf(`
		INSERT INTO clover_tax_rates (%[1]s, clover_tax_rate_id, nombre, rate, is_default, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (%[1]s, clover_tax_rate_id)
		DO UPDATE SET nombre = EXCLUDED.nombre, rate = EXCLUDED.rate, is_default = EXCLUDED.is_default, is_active = EXCLUDED.is_active
	`, merchantCol)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tax rate upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range rates {
		var rate any
		if !math.IsNaN(t.Rate) && !math.IsInf(t.Rate, 0) {
			rate = t.Rate
		}
		if _, err := tx.Exec(ctx, query, merchantID, t.CloverTaxRateID, t.Name, rate, t.IsDefault, t.IsActive); err != nil {
			return fmt.Errorf("failed to upsert tax rate: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// ReplaceProductLinks deletes every link of rateIDs and inserts links in one transaction.
func (r *taxRepo) ReplaceProductLinks(ctx context.Context, rateIDs []int64, links []models.ProductTaxLink) error {
	if len(rateIDs) == 0 {
		return nil
	}
	productCol, rateCol := r.linkColumns(ctx)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin product tax link rebuild: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteQuery := fmt.Sprintf(`DELETE FROM producto_tax_rates WHERE %s = ANY($1)`, quote(rateCol))
	if _, err := tx.Exec(ctx, deleteQuery, rateIDs); err != nil {
		return fmt.Errorf("failed to clear product tax links: %w", err)
	}

	if len(links) > 0 {
		productIDs := make([]int64, len(links))
		taxRateIDs := make([]int64, len(links))
		for i, l := range links {
			productIDs[i] = l.ProductID
			taxRateIDs[i] = l.TaxRateID
		}
		insertQuery := fmt.Sprintf(`
			INSERT INTO producto_tax_rates (%s, %s)
			SELECT * FROM unnest($1::bigint[], $2::bigint[])
		`, quote(productCol), quote(rateCol))
		if _, err := tx.Exec(ctx, insertQuery, productIDs, taxRateIDs); err != nil {
			return fmt.Errorf("failed to insert product tax links: %w", err)
		}
	}
	return tx.Commit(ctx)
}
