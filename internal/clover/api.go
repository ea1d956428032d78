package clover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// TaxRate is the tax rate shape attached to order line items.
type TaxRate struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Rate      int64  `json:"rate"`
	IsDefault *bool  `json:"isDefault,omitempty"`
}

// CheckoutTaxRate is the tax rate shape accepted by hosted checkout.
type CheckoutTaxRate struct {
	Name string `json:"name"`
	Rate int64  `json:"rate"`
}

type ItemRef struct {
	ID string `json:"id"`
}

// LineItemRequest appends a catalog item to an open order.
type LineItemRequest struct {
	Item     ItemRef   `json:"item"`
	UnitQty  int       `json:"unitQty"`
	Note     string    `json:"note,omitempty"`
	TaxRates []TaxRate `json:"taxRates,omitempty"`
}

// CheckoutLineItem is one priced line of a hosted checkout. Price is in cents.
type CheckoutLineItem struct {
	Name     string            `json:"name"`
	Price    int64             `json:"price"`
	UnitQty  int               `json:"unitQty"`
	Note     string            `json:"note,omitempty"`
	TaxRates []CheckoutTaxRate `json:"taxRates,omitempty"`
}

type CheckoutRequest struct {
	Customer     any               `json:"customer"`
	ShoppingCart ShoppingCart      `json:"shoppingCart"`
	Tips         Tips              `json:"tips"`
	RedirectURLs map[string]string `json:"redirectUrls,omitempty"`
}

type ShoppingCart struct {
	LineItems []CheckoutLineItem `json:"lineItems"`
}

type Tips struct {
	Enabled bool `json:"enabled"`
}

// CheckoutSession is what the POS returns for a created hosted checkout.
type CheckoutSession struct {
	URL       string
	SessionID string
	OrderID   string
}

func merchantPath(merchantID string, format string, args ...any) string {
	return "/v3/merchants/" + url.PathEscape(merchantID) + fmt.Sprintf(format, args...)
}

// CreateOrder opens an order shell and returns its id.
func (c *Client) CreateOrder(ctx context.Context, accessToken, merchantID, note string) (string, error) {
	raw, err := c.makeRequest(ctx, http.MethodPost, merchantPath(merchantID, "/orders"), accessToken,
		map[string]any{"state": "open", "note": note}, nil)
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return "", err
	}
	return StringField(obj, "id"), nil
}

// AddLineItem appends a line item and returns its id.
func (c *Client) AddLineItem(ctx context.Context, accessToken, merchantID, orderID string, item LineItemRequest) (string, error) {
	raw, err := c.makeRequest(ctx, http.MethodPost, merchantPath(merchantID, "/orders/%s/line_items", url.PathEscape(orderID)), accessToken, item, nil)
	if err != nil {
		return "", err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return "", err
	}
	if id := StringField(obj, "id"); id != "" {
		return id, nil
	}
	return NestedID(obj, "lineItem"), nil
}

// AddModification applies a modifier to a line item.
func (c *Client) AddModification(ctx context.Context, accessToken, merchantID, orderID, lineItemID, modifierID string) error {
	path := merchantPath(merchantID, "/orders/%s/line_items/%s/modifications", url.PathEscape(orderID), url.PathEscape(lineItemID))
	_, err := c.makeRequest(ctx, http.MethodPost, path, accessToken, map[string]any{"modifier": ItemRef{ID: modifierID}}, nil)
	return err
}

// UpdateOrder posts a partial update to an existing order.
func (c *Client) UpdateOrder(ctx context.Context, accessToken, merchantID, orderID string, update map[string]any) error {
	_, err := c.makeRequest(ctx, http.MethodPost, merchantPath(merchantID, "/orders/%s", url.PathEscape(orderID)), accessToken, update, nil)
	return err
}

func (c *Client) ListOrderTypes(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, merchantPath(merchantID, "/order_types?limit=200"), accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeElements(raw, "orderTypes")
}

func (c *Client) ListSystemOrderTypes(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, merchantPath(merchantID, "/system_order_types"), accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeElements(raw, "systemOrderTypes")
}

// CreateOrderType posts payload as a new order type and returns the created object.
func (c *Client) CreateOrderType(ctx context.Context, accessToken, merchantID string, payload map[string]any) (map[string]any, error) {
	raw, err := c.makeRequest(ctx, http.MethodPost, merchantPath(merchantID, "/order_types"), accessToken, payload, nil)
	if err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

// CreateCheckout creates a hosted checkout session for the merchant.
func (c *Client) CreateCheckout(ctx context.Context, accessToken, merchantID string, checkout *CheckoutRequest) (*CheckoutSession, error) {
	raw, err := c.makeRequest(ctx, http.MethodPost, "/invoicingcheckoutservice/v1/checkouts", accessToken, checkout,
		map[string]string{"X-Clover-Merchant-Id": merchantID})
	if err != nil {
		return nil, err
	}
	obj, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	session := &CheckoutSession{
		URL:       StringField(obj, "href", "url"),
		SessionID: StringField(obj, "checkoutSessionId", "id"),
		OrderID:   StringField(obj, "orderId"),
	}
	if session.OrderID == "" {
		session.OrderID = NestedID(obj, "order")
	}
	return session, nil
}

// ListTaxRates returns the merchant's POS tax rates as raw objects.
func (c *Client) ListTaxRates(ctx context.Context, accessToken, merchantID string) ([]map[string]any, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, merchantPath(merchantID, "/tax_rates"), accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeElements(raw, "taxRates")
}

// TaxRateItemIDs returns the ids of the catalog items a tax rate applies to.
func (c *Client) TaxRateItemIDs(ctx context.Context, accessToken, merchantID, taxRateID string) ([]string, error) {
	raw, err := c.makeRequest(ctx, http.MethodGet, merchantPath(merchantID, "/tax_rates/%s/items?limit=1000", url.PathEscape(taxRateID)), accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	items, err := decodeElements(raw, "items")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if id := StringField(item, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
