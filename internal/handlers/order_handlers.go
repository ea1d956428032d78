package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"findixi/internal/caching"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// OrderHandlers handles HTTP requests for order submission and status
type OrderHandlers struct {
	orders         services.OrderService
	limiter        caching.CacheService
	limitPerMinute int
}

// NewOrderHandlers creates a new order handlers instance. A nil limiter or a
// non-positive limit disables rate limiting.
func NewOrderHandlers(orders services.OrderService, limiter caching.CacheService, limitPerMinute int) *OrderHandlers {
	return &OrderHandlers{
		orders:         orders,
		limiter:        limiter,
		limitPerMinute: limitPerMinute,
	}
}

// CreateOrder handles POST /v1/orders
func (h *OrderHandlers) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.SubmitOrderRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "invalid JSON body")
	}

	if h.rateLimited(ctx, fmt.Sprintf("orders:%s:%s", c.RealIP(), req.MerchantRef().String())) {
		return common.SendError(c, common.NewRateLimitedError("too many orders, try again in a minute"))
	}

	var userID *uuid.UUID
	if id, ok := common.GetUserIDFromContext(ctx); ok {
		userID = &id
	}

	result, err := h.orders.Submit(ctx, &req, userID)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetOrderStatus handles GET /v1/orders/status/:token
func (h *OrderHandlers) GetOrderStatus(c echo.Context) error {
	order, err := h.orders.StatusByLinkToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":    true,
		"order": order,
	})
}

// rateLimited fails open when the limiter is unavailable.
func (h *OrderHandlers) rateLimited(ctx context.Context, key string) bool {
	if h.limiter == nil || h.limitPerMinute <= 0 {
		return false
	}
	limited, err := h.limiter.IsRateLimited(ctx, key, h.limitPerMinute, time.Minute)
	if err != nil {
		log.Printf("WARN: [rate-limit] check failed for %s: %v", key, err)
		return false
	}
	return limited
}
