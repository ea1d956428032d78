package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"findixi/internal/clover"
	"findixi/internal/models"
)

// PickupOrderNote marks pickup orders on the merchant's POS terminal.
const PickupOrderNote = "***** ORDEN FINDIXI PICKUP *****"

const orderTokenPlaceholder = "{ORDER_TOKEN}"

// PickupResult is what a created hosted checkout hands back.
type PickupResult struct {
	CheckoutURL string
	SessionID   string
	OrderID     string
	Warning     string
}

// RemoteOrderBuilder pushes a priced cart to the POS, either as an open
// order (dine-in) or as a hosted checkout (pickup).
type RemoteOrderBuilder struct {
	pos POSClient
}

func NewRemoteOrderBuilder(pos POSClient) *RemoteOrderBuilder {
	return &RemoteOrderBuilder{pos: pos}
}

// CreateDineIn opens an order, then adds every line and its modifiers.
// A failure after the order exists leaves it partially built on the POS.
func (b *RemoteOrderBuilder) CreateDineIn(ctx context.Context, session *TokenSession, conn *models.Connection, cart *PricedCart, table string) (string, error) {
	mid := conn.PosMerchantID()
	note := "Mesa - Findixi"
	if table != "" {
		note = fmt.Sprintf("Mesa %s - Findixi", table)
	}

	var orderID string
	err := session.Do(ctx, func(token string) error {
		var err error
		orderID, err = b.pos.CreateOrder(ctx, token, mid, note)
		return err
	})
	if err != nil {
		log.Printf("ERROR: [clover-create-order] could not open order for merchant %d (%s): %v", conn.MerchantID, mid, err)
		return "", remoteError("could not create order on the POS", err)
	}
	if orderID == "" {
		return "", remoteError("POS did not return an order id", errors.New("missing order id"))
	}

	for i := range cart.Lines {
		line := &cart.Lines[i]
		if err := b.addLine(ctx, session, mid, orderID, line); err != nil {
			log.Printf("ERROR: [clover-create-order] order %s for merchant %d (%s) left partially built at product %d: %v",
				orderID, conn.MerchantID, mid, line.Product.ID, err)
			return orderID, err
		}
	}
	return orderID, nil
}

func (b *RemoteOrderBuilder) addLine(ctx context.Context, session *TokenSession, mid, orderID string, line *PricedLine) error {
	req := clover.LineItemRequest{
		Item:     clover.ItemRef{ID: *line.Product.CloverItemID},
		UnitQty:  line.Item.Quantity,
		Note:     line.Item.Note,
		TaxRates: lineTaxRates(line.TaxRates),
	}
	var lineItemID string
	err := session.Do(ctx, func(token string) error {
		var err error
		lineItemID, err = b.pos.AddLineItem(ctx, token, mid, orderID, req)
		return err
	})
	if err != nil {
		return remoteError("could not add line item on the POS", err)
	}
	if lineItemID == "" {
		return remoteError("could not add line item on the POS", errors.New("missing line item id"))
	}

	for _, mod := range line.Modifiers {
		err := session.Do(ctx, func(token string) error {
			return b.pos.AddModification(ctx, token, mid, orderID, lineItemID, *mod.CloverModifierID)
		})
		if err != nil {
			return remoteError("could not add modifier on the POS", err)
		}
	}
	return nil
}

// CreatePickupCheckout creates one hosted checkout for the whole cart and
// then tries to tag the resulting order as pickup.
func (b *RemoteOrderBuilder) CreatePickupCheckout(ctx context.Context, session *TokenSession, conn *models.Connection, cart *PricedCart,
	orderType *models.OrderType, sub *models.OrderSubmission, linkToken string) (*PickupResult, error) {
	mid := conn.PosMerchantID()
	checkout := &clover.CheckoutRequest{
		Customer:     checkoutCustomer(sub.Customer),
		ShoppingCart: clover.ShoppingCart{LineItems: checkoutLines(cart)},
		Tips:         clover.Tips{Enabled: sub.TipsEnabled},
		RedirectURLs: redirectURLs(sub.RedirectURLs, linkToken),
	}

	var created *clover.CheckoutSession
	err := session.Do(ctx, func(token string) error {
		var err error
		created, err = b.pos.CreateCheckout(ctx, token, mid, checkout)
		return err
	})
	if err != nil {
		log.Printf("ERROR: [clover-create-order] hosted checkout failed for merchant %d (%s): %v", conn.MerchantID, mid, err)
		return nil, remoteError("could not create checkout on the POS", err)
	}
	if created.URL == "" {
		return nil, remoteError("POS did not return a checkout url", errors.New("missing checkout url"))
	}

	result := &PickupResult{CheckoutURL: created.URL, SessionID: created.SessionID, OrderID: created.OrderID}
	if result.OrderID == "" {
		return result, nil
	}

	update := map[string]any{"note": PickupOrderNote}
	if orderType != nil && orderType.ID != "" {
		update["orderType"] = map[string]any{"id": orderType.ID}
	}
	err = session.Do(ctx, func(token string) error {
		return b.pos.UpdateOrder(ctx, token, mid, result.OrderID, update)
	})
	if err != nil {
		log.Printf("WARN: [clover-create-order] could not tag order %s as pickup for merchant %d: %v", result.OrderID, conn.MerchantID, err)
		result.Warning = err.Error()
	}
	return result, nil
}

func checkoutCustomer(customer *models.Customer) any {
	if customer == nil {
		return map[string]any{}
	}
	return customer
}

func redirectURLs(templates map[string]string, linkToken string) map[string]string {
	if len(templates) == 0 {
		return nil
	}
	out := make(map[string]string, len(templates))
	for key, value := range templates {
		out[key] = strings.Replace(value, orderTokenPlaceholder, linkToken, 1)
	}
	return out
}

func checkoutLines(cart *PricedCart) []clover.CheckoutLineItem {
	lines := make([]clover.CheckoutLineItem, 0, len(cart.Lines))
	for i := range cart.Lines {
		line := &cart.Lines[i]
		name := line.Product.Name
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("Producto %d", line.Product.ID)
		}
		var rates []clover.CheckoutTaxRate
		for _, r := range line.TaxRates {
			rates = append(rates, clover.CheckoutTaxRate{Name: r.DisplayName(), Rate: int64(math.Round(r.Rate))})
		}
		lines = append(lines, clover.CheckoutLineItem{
			Name:     name,
			Price:    line.UnitMinor,
			UnitQty:  line.Item.Quantity,
			Note:     pickupLineNote(line),
			TaxRates: rates,
		})
	}
	return lines
}

func lineTaxRates(rates []models.TaxRate) []clover.TaxRate {
	var out []clover.TaxRate
	for _, r := range rates {
		rate := clover.TaxRate{Rate: int64(math.Round(r.Rate)), IsDefault: &r.IsDefault}
		if r.CloverTaxRateID != nil {
			rate.ID = *r.CloverTaxRateID
		}
		if r.Name != nil {
			rate.Name = *r.Name
		}
		out = append(out, rate)
	}
	return out
}

func pickupLineNote(line *PricedLine) string {
	parts := []string{PickupOrderNote}
	if note := ModifierNote(line.Modifiers); note != "" {
		parts = append(parts, note)
	}
	if line.Item.Note != "" {
		parts = append(parts, "Nota: "+line.Item.Note)
	}
	return strings.Join(parts, "\n")
}

// ModifierNote renders selected modifiers one line per group, e.g.
// "Tamaño: Grande (+$1.50), Extra queso".
func ModifierNote(mods []*models.ModifierItem) string {
	if len(mods) == 0 {
		return ""
	}
	var groups []string
	byGroup := make(map[string][]string)
	for _, mod := range mods {
		group := strings.TrimSpace(mod.GroupName)
		if group == "" {
			group = "Opciones"
		}
		if _, seen := byGroup[group]; !seen {
			groups = append(groups, group)
		}
		label := mod.Name
		if label == "" {
			label = "Opcion"
		}
		if extra := mod.Extra(); isFinite(extra) && extra > 0 {
			label += fmt.Sprintf(" (+$%.2f)", extra)
		}
		byGroup[group] = append(byGroup[group], label)
	}
	lines := make([]string, 0, len(groups))
	for _, group := range groups {
		lines = append(lines, group+": "+strings.Join(byGroup[group], ", "))
	}
	return strings.Join(lines, "\n")
}
