package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order modes as they travel on the wire and in the ordenes.order_type column.
const (
	ModePickup = "pickup"
	ModeDineIn = "mesa"
)

// Local order statuses written at creation time.
const (
	StatusPending = "pending" // pickup: waiting for hosted checkout payment
	StatusSent    = "sent"    // dine-in: already pushed to the POS
)

// Submission sources.
const (
	SourceApp = "app"
	SourceQR  = "qr"
)

// Order is the persisted order summary returned to clients.
type Order struct {
	ID                int64           `json:"id" db:"id"`
	Status            string          `json:"status" db:"status"`
	CheckoutURL       *string         `json:"checkout_url" db:"checkout_url"`
	CloverOrderID     *string         `json:"clover_order_id" db:"clover_order_id"`
	CheckoutSessionID *string         `json:"checkout_session_id" db:"checkout_session_id"`
	Total             decimal.Decimal `json:"total" db:"total"`

	// Computed for the submitting request only, not read back from storage.
	Subtotal *decimal.Decimal `json:"subtotal,omitempty" db:"-"`
	Tax      *decimal.Decimal `json:"tax,omitempty" db:"-"`
}

// NewOrder is everything the persistence writer needs to insert an order row.
type NewOrder struct {
	MerchantID        int64
	CloverMerchantID  string
	CloverOrderID     *string
	CheckoutSessionID *string
	CheckoutURL       *string
	Subtotal          decimal.Decimal
	TaxTotal          decimal.Decimal
	Total             decimal.Decimal
	Status            string
	IdempotencyKey    *string
	Mode              string
	Table             *string
	Source            string
	CustomerEmail     *string
	CustomerPhone     *string
	CustomerName      *string
	CustomerUserID    *string
	OrderLinkToken    string
	OrderLinkExpires  *time.Time
}

// OrderLineItem is one persisted cart line. PriceSnapshot is the unit price
// actually charged (base + modifier extras) and never changes after insert.
type OrderLineItem struct {
	OrderID       int64           `json:"idorden" db:"idorden"`
	ProductID     int64           `json:"idproducto" db:"idproducto"`
	CloverItemID  string          `json:"clover_item_id" db:"clover_item_id"`
	Quantity      int             `json:"qty" db:"qty"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot" db:"price_snapshot"`
	Modifiers     LineModifiers   `json:"modifiers" db:"modifiers"`
}

// LineModifiers is the jsonb payload stored with each line for receipts.
type LineModifiers struct {
	Items []AppliedModifier `json:"items"`
	Note  *string           `json:"nota"`
}

type AppliedModifier struct {
	ID               int64   `json:"id"`
	CloverModifierID string  `json:"clover_modifier_id"`
	Name             *string `json:"nombre"`
	ExtraPrice       float64 `json:"precio_extra"`
	Group            *string `json:"grupo"`
}

// SubmitOrderResult is the success body of the create-order endpoint.
type SubmitOrderResult struct {
	OK                bool    `json:"ok"`
	Reused            bool    `json:"reused,omitempty"`
	Order             *Order  `json:"order"`
	CheckoutURL       *string `json:"checkout_url,omitempty"`
	CloverOrderID     *string `json:"clover_order_id,omitempty"`
	CheckoutSessionID *string `json:"checkout_session_id,omitempty"`
	OrderLinkToken    string  `json:"order_link_token,omitempty"`
	OrderTypeWarning  *string `json:"order_type_warning,omitempty"`
}
