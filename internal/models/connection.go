package models

import (
	"strings"
	"time"
)

// Connection is the per-merchant link to the POS account. One row per merchant.
type Connection struct {
	ID               int64      `json:"id" db:"id"`
	MerchantID       int64      `json:"idComercio" db:"idComercio"`
	CloverMerchantID *string    `json:"clover_merchant_id" db:"clover_merchant_id"`
	AccessToken      string     `json:"-" db:"access_token"`
	RefreshToken     *string    `json:"-" db:"refresh_token"`
	ExpiresAt        *string    `json:"expires_at" db:"expires_at"` // raw text, may be missing or unparsable
	OrderTypeID      *string    `json:"clover_order_type_id" db:"clover_order_type_id"`
	OrderTypeName    *string    `json:"clover_order_type_name" db:"clover_order_type_name"`
	OrderTypeReadyAt *time.Time `json:"order_type_ready_at" db:"order_type_ready_at"`
}

// HasRefreshToken reports whether a non-empty refresh token is on file.
func (c *Connection) HasRefreshToken() bool {
	return c.RefreshToken != nil && *c.RefreshToken != ""
}

// PosMerchantID returns the POS-side merchant id or "" when not stored.
func (c *Connection) PosMerchantID() string {
	if c.CloverMerchantID == nil {
		return ""
	}
	return *c.CloverMerchantID
}

// expiryLayouts covers ISO strings and Postgres timestamptz text output,
// whose offset is "+00", "+05:30" or, for historic zones, "+05:53:28".
// Values without an offset are UTC.
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999-07:00:00",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// ExpiryTime parses ExpiresAt. ok is false when missing or unparsable.
func (c *Connection) ExpiryTime() (time.Time, bool) {
	if c.ExpiresAt == nil || strings.TrimSpace(*c.ExpiresAt) == "" {
		return time.Time{}, false
	}
	raw := strings.TrimSpace(*c.ExpiresAt)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TokenPair is the result of an OAuth refresh, ready to persist.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // zero when the server sent no lifetime
}

// OrderType is the POS order type resolved for pickup orders.
type OrderType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
