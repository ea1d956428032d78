package repositories

import (
	"context"
	"errors"
	"fmt"

	"findixi/internal/models"

	"github.com/jackc/pgx/v5"
)

const (
	ordersTable     = "ordenes"
	orderItemsTable = "orden_items"
)

var (
	ErrOrderNotFound           = errors.New("order not found")
	ErrDuplicateIdempotencyKey = errors.New("order with this idempotency key already exists")
)

var orderSummaryColumns = []string{"id", "status", "checkout_url", "clover_order_id", "checkout_session_id", "total"}

type OrderRepository interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetByLinkToken(ctx context.Context, token string) (*models.Order, error)
	CreateWithItems(ctx context.Context, order *models.NewOrder, items []models.OrderLineItem) (*models.Order, error)
}

type orderRepo struct {
	db     Database
	schema *SchemaAdapter
}

func NewOrderRepo(db Database, schema *SchemaAdapter) OrderRepository {
	return &orderRepo{db: db, schema: schema}
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	if err := row.Scan(&order.ID, &order.Status, &order.CheckoutURL, &order.CloverOrderID, &order.CheckoutSessionID, &order.Total); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepo) getBy(ctx context.Context, column string, value any) (*models.Order, error) {
	query := fmt.Sprintf(`
		SELECT id, status, checkout_url, clover_order_id, checkout_session_id, total
		FROM ordenes
		WHERE %s = $1
		LIMIT 1
	`, quote(column))
	order, err := scanOrder(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func (r *orderRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return r.getBy(ctx, "idempotency_key", key)
}

// GetByLinkToken finds an order by its client-visible link token. Databases
// without the order_link_token column never match.
func (r *orderRepo) GetByLinkToken(ctx context.Context, token string) (*models.Order, error) {
	if present, known := r.schema.HasColumn(ctx, ordersTable, "order_link_token"); known && !present {
		return nil, ErrOrderNotFound
	}
	return r.getBy(ctx, "order_link_token", token)
}

func orderPayload(o *models.NewOrder) map[string]any {
	payload := map[string]any{
		"idcomercio":          o.MerchantID,
		"clover_merchant_id":  o.CloverMerchantID,
		"clover_order_id":     o.CloverOrderID,
		"checkout_session_id": o.CheckoutSessionID,
		"checkout_url":        o.CheckoutURL,
		"total":               o.Total,
		"status":              o.Status,
		"idempotency_key":     o.IdempotencyKey,
		"order_type":          o.Mode,
		"mesa":                o.Table,
		"source":              o.Source,

		// optional, stripped when the column is missing
		"customer_email":        o.CustomerEmail,
		"customer_phone":        o.CustomerPhone,
		"customer_name":         o.CustomerName,
		"customer_user_id":      o.CustomerUserID,
		"order_link_token":      o.OrderLinkToken,
		"order_link_expires_at": o.OrderLinkExpires,
		"subtotal":              o.Subtotal,
		"tax_total":             o.TaxTotal,
	}
	return payload
}

func itemPayload(orderID int64, item models.OrderLineItem) map[string]any {
	return map[string]any{
		"idorden":        orderID,
		"idproducto":     item.ProductID,
		"clover_item_id": item.CloverItemID,
		"qty":            item.Quantity,
		"price_snapshot": item.PriceSnapshot,
		"modifiers":      item.Modifiers,
	}
}

// CreateWithItems writes the order and its line items in one transaction.
// A unique violation on the order insert is reported as ErrDuplicateIdempotencyKey
// when the order carries an idempotency key.
func (r *orderRepo) CreateWithItems(ctx context.Context, order *models.NewOrder, items []models.OrderLineItem) (*models.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin order transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := &models.Order{}
	err = r.schema.InsertWithFallback(ctx, tx, ordersTable, orderPayload(order), orderSummaryColumns,
		&created.ID, &created.Status, &created.CheckoutURL, &created.CloverOrderID, &created.CheckoutSessionID, &created.Total)
	if err != nil {
		if IsUniqueViolation(err) && order.IdempotencyKey != nil {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for i, item := range items {
		if err := r.schema.InsertWithFallback(ctx, tx, orderItemsTable, itemPayload(created.ID, item), nil); err != nil {
			return nil, fmt.Errorf("failed to insert order item %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return created, nil
}
