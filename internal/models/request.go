package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SubmitOrderRequest is the raw create-order body as sent by the storefront.
// Older storefront builds send id, order_type, table and, per item, id and
// mods; those are read only when the primary key is absent.
type SubmitOrderRequest struct {
	MerchantID      json.Number     `json:"idComercio"`
	MerchantIDAlias json.Number     `json:"id"`
	Items           []CartItemInput `json:"items"`
	Mode            string          `json:"mode"`
	OrderType       string          `json:"order_type"`
	Table           FlexString      `json:"mesa"`
	TableAlias      FlexString      `json:"table"`
	Source          string          `json:"source"`
	Customer        *Customer       `json:"customer"`
	RedirectURLs    map[string]any  `json:"redirectUrls"`
	IdempotencyKey  string          `json:"idempotencyKey"`
	TipsEnabled     *bool           `json:"tipsEnabled"`
}

type CartItemInput struct {
	ProductID      json.Number     `json:"idProducto"`
	ProductIDAlias json.Number     `json:"id"`
	Quantity       *json.Number    `json:"qty"`
	Modifiers      json.RawMessage `json:"modifiers"`
	Mods           json.RawMessage `json:"mods"`
	Note           *string         `json:"nota"`
}

// MerchantRef is idComercio, or id when idComercio is absent.
func (r *SubmitOrderRequest) MerchantRef() json.Number {
	if r.MerchantID != "" {
		return r.MerchantID
	}
	return r.MerchantIDAlias
}

func (r *SubmitOrderRequest) ModeRef() string {
	if r.Mode != "" {
		return r.Mode
	}
	return r.OrderType
}

func (r *SubmitOrderRequest) TableRef() FlexString {
	if r.Table.Set {
		return r.Table
	}
	return r.TableAlias
}

func (i *CartItemInput) ProductRef() json.Number {
	if i.ProductID != "" {
		return i.ProductID
	}
	return i.ProductIDAlias
}

// ModifiersRef is modifiers, or mods when modifiers is absent or null.
func (i *CartItemInput) ModifiersRef() json.RawMessage {
	if len(i.Modifiers) > 0 && !bytes.Equal(bytes.TrimSpace(i.Modifiers), []byte("null")) {
		return i.Modifiers
	}
	return i.Mods
}

// Customer is forwarded to the hosted checkout as-is and partly persisted.
type Customer struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// DisplayName prefers Name, falling back to "First Last".
func (c *Customer) DisplayName() string {
	if c == nil {
		return ""
	}
	if strings.TrimSpace(c.Name) != "" {
		return strings.TrimSpace(c.Name)
	}
	return strings.TrimSpace(strings.Join(nonEmpty(c.FirstName, c.LastName), " "))
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// FlexString accepts either a JSON string or a JSON number.
type FlexString struct {
	Value string
	Set   bool
}

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f.Value, f.Set = strings.TrimSpace(s), true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// Objects, arrays and booleans are ignored like an absent table.
		return nil
	}
	f.Value, f.Set = n.String(), true
	return nil
}

// CartItem is a validated, normalised cart line.
type CartItem struct {
	ProductID   int64
	Quantity    int
	ModifierIDs []int64
	Note        string
}

// OrderSubmission is a validated create-order request.
type OrderSubmission struct {
	MerchantID     int64
	Items          []CartItem
	Mode           string
	Table          string
	Source         string
	Customer       *Customer
	RedirectURLs   map[string]string
	IdempotencyKey string
	TipsEnabled    bool
}
