package handlers

import (
	"context"
	"net/http"

	"findixi/internal/common"
	"findixi/internal/services"

	"github.com/labstack/echo/v4"
)

// TaxRateSyncer mirrors POS tax rates for one merchant.
type TaxRateSyncer interface {
	Sync(ctx context.Context, merchantID int64) (*services.TaxSyncResult, error)
}

// TokenRefresher runs one refresh sweep over all POS connections.
type TokenRefresher interface {
	Run(ctx context.Context) (*services.SweepResult, error)
}

// CloverHandlers serves the POS maintenance endpoints.
type CloverHandlers struct {
	taxSync TaxRateSyncer
	sweeper TokenRefresher
}

func NewCloverHandlers(taxSync TaxRateSyncer, sweeper TokenRefresher) *CloverHandlers {
	return &CloverHandlers{taxSync: taxSync, sweeper: sweeper}
}

// SyncTaxRates handles POST /v1/clover/tax-rates/sync?idComercio=
func (h *CloverHandlers) SyncTaxRates(c echo.Context) error {
	merchantID, err := common.ParsePositiveID(c.QueryParam("idComercio"), "idComercio")
	if err != nil {
		return common.SendClientError(c, err.Error())
	}

	result, err := h.taxSync.Sync(c.Request().Context(), merchantID)
	if err != nil {
		return common.SendError(c, err)
	}
	return c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*services.TaxSyncResult
	}{true, result})
}

// RefreshTokens handles POST /v1/clover/refresh-tokens
func (h *CloverHandlers) RefreshTokens(c echo.Context) error {
	result, err := h.sweeper.Run(c.Request().Context())
	if err != nil {
		return common.SendError(c, common.NewPersistenceError("token refresh sweep failed", err))
	}
	return c.JSON(http.StatusOK, struct {
		OK bool `json:"ok"`
		*services.SweepResult
	}{true, result})
}
