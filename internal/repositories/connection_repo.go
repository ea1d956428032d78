package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"findixi/internal/common"
	"findixi/internal/models"

	"github.com/jackc/pgx/v5"
)

const connectionsTable = "clover_conexiones"

type ConnectionRepository interface {
	GetByMerchantID(ctx context.Context, merchantID int64) (*models.Connection, error)
	UpdateTokens(ctx context.Context, connectionID int64, tokens *models.TokenPair) error
	SaveOrderType(ctx context.Context, connectionID int64, orderType *models.OrderType) error
	ListPage(ctx context.Context, afterID int64, limit int) ([]*models.Connection, error)
}

type connectionRepo struct {
	db     Querier
	schema *SchemaAdapter
}

func NewConnectionRepo(db Querier, schema *SchemaAdapter) ConnectionRepository {
	return &connectionRepo{db: db, schema: schema}
}

// selectColumns lists the connection columns, substituting NULL for optional
// order-type columns the table does not have.
func (r *connectionRepo) selectColumns(ctx context.Context) string {
	merchantCol := r.schema.ResolveColumn(ctx, connectionsTable, "idComercio", "idcomercio")
	cols := []string{
		"id",
		quote(merchantCol),
		"clover_merchant_id",
		"access_token",
		"refresh_token",
		"expires_at::text",
	}
	optional := []struct{ name, cast string }{
		{"clover_order_type_id", "text"},
		{"clover_order_type_name", "text"},
		{"order_type_ready_at", "timestamptz"},
	}
	for _, o := range optional {
		if present, known := r.schema.HasColumn(ctx, connectionsTable, o.name); known && !present {
			cols = append(cols, fmt.Sprintf("NULL::%s AS %s", o.cast, o.name))
			continue
		}
		cols = append(cols, o.name)
	}
	return strings.Join(cols, ", ")
}

func scanConnection(row pgx.Row) (*models.Connection, error) {
	conn := &models.Connection{}
	err := row.Scan(&conn.ID, &conn.MerchantID, &conn.CloverMerchantID, &conn.AccessToken, &conn.RefreshToken, &conn.ExpiresAt,
		&conn.OrderTypeID, &conn.OrderTypeName, &conn.OrderTypeReadyAt)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepo) GetByMerchantID(ctx context.Context, merchantID int64) (*models.Connection, error) {
	merchantCol := r.schema.ResolveColumn(ctx, connectionsTable, "idComercio", "idcomercio")
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 LIMIT 1`, r.selectColumns(ctx), connectionsTable, quote(merchantCol))

	conn, err := scanConnection(r.db.QueryRow(ctx, query, merchantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to load POS connection: %w", err)
	}
	return conn, nil
}

// UpdateTokens stores a refreshed token pair. An empty refresh token or a
// zero expiry keeps the stored value.
func (r *connectionRepo) UpdateTokens(ctx context.Context, connectionID int64, tokens *models.TokenPair) error {
	var expiresAt any
	if !tokens.ExpiresAt.IsZero() {
		expiresAt = tokens.ExpiresAt.UTC()
	}
	query := `
		UPDATE clover_conexiones
		SET access_token = $1, refresh_token = COALESCE(NULLIF($2, ''), refresh_token), expires_at = COALESCE($3, expires_at)
		WHERE id = $4
	`
	_, err := r.db.Exec(ctx, query, tokens.AccessToken, tokens.RefreshToken, expiresAt, connectionID)
	if err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}
	return nil
}

// SaveOrderType caches the resolved pickup order type on the connection.
// Columns the table lacks are skipped.
func (r *connectionRepo) SaveOrderType(ctx context.Context, connectionID int64, orderType *models.OrderType) error {
	payload := map[string]any{
		"clover_order_type_id":   orderType.ID,
		"clover_order_type_name": orderType.Name,
		"order_type_ready_at":    time.Now().UTC(),
	}
	if err := r.schema.UpdateWithFallback(ctx, r.db, connectionsTable, payload, "id", connectionID); err != nil {
		return fmt.Errorf("failed to persist order type: %w", err)
	}
	return nil
}

// ListPage returns connections with id greater than afterID in id order.
func (r *connectionRepo) ListPage(ctx context.Context, afterID int64, limit int) ([]*models.Connection, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id > $1 ORDER BY id LIMIT $2`, r.selectColumns(ctx), connectionsTable)
	rows, err := r.db.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list POS connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan POS connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}
