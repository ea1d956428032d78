package services

import (
	"context"
	"errors"

	"findixi/internal/clover"
	"findixi/internal/common"
)

// POSClient is the subset of the POS API the services drive.
type POSClient interface {
	CreateOrder(ctx context.Context, accessToken, merchantID, note string) (string, error)
	AddLineItem(ctx context.Context, accessToken, merchantID, orderID string, item clover.LineItemRequest) (string, error)
	AddModification(ctx context.Context, accessToken, merchantID, orderID, lineItemID, modifierID string) error
	UpdateOrder(ctx context.Context, accessToken, merchantID, orderID string, update map[string]any) error
	ListOrderTypes(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error)
	ListSystemOrderTypes(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error)
	CreateOrderType(ctx context.Context, accessToken, merchantID string, payload map[string]any) (map[string]any, error)
	CreateCheckout(ctx context.Context, accessToken, merchantID string, checkout *clover.CheckoutRequest) (*clover.CheckoutSession, error)
	ListTaxRates(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error)
	TaxRateItemIDs(ctx context.Context, accessToken, merchantID, taxRateID string) ([]string, error)
}

// remoteError classifies a failed POS call. NeedsReconnect and other
// already-classified errors pass through; POS answers carry their status,
// raw body and path as details.
func remoteError(message string, err error) error {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, common.ErrNeedsReconnect) {
		return common.NewNeedsReconnectError(err)
	}
	remote := common.NewRemoteError(message, err)
	var apiErr *clover.APIError
	if errors.As(err, &apiErr) {
		remote.WithDetail("status", apiErr.Status).
			WithDetail("raw", apiErr.Raw).
			WithDetail("path", apiErr.Path)
	} else if err != nil {
		remote.WithDetail("reason", err.Error())
	}
	return remote
}

func isNeedsReconnect(err error) bool {
	return common.KindOf(err) == common.KindNeedsReconnect
}
