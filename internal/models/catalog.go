package models

// Product is a merchant-scoped menu item. CloverItemID nil means the product
// has not been linked to the POS catalog yet.
type Product struct {
	ID           int64   `json:"id" db:"id"`
	MenuID       int64   `json:"idMenu" db:"idMenu"`
	Name         string  `json:"nombre" db:"nombre"`
	Price        float64 `json:"precio" db:"precio"`
	CloverItemID *string `json:"clover_item_id" db:"clover_item_id"`
}

// IsLinked reports whether the product carries a POS item id.
func (p *Product) IsLinked() bool {
	return p.CloverItemID != nil && *p.CloverItemID != ""
}

type ModifierGroup struct {
	ID        int64  `json:"id" db:"id"`
	ProductID int64  `json:"idproducto" db:"idproducto"`
	Name      string `json:"nombre" db:"nombre"`
}

// ModifierItem is one selectable option inside a ModifierGroup.
type ModifierItem struct {
	ID               int64    `json:"id" db:"id"`
	GroupID          int64    `json:"idgrupo" db:"idgrupo"`
	Name             string   `json:"nombre" db:"nombre"`
	ExtraPrice       *float64 `json:"precio_extra" db:"precio_extra"`
	CloverModifierID *string  `json:"clover_modifier_id" db:"clover_modifier_id"`

	// Filled by the catalog lookup from the owning group.
	ProductID int64  `json:"-" db:"-"`
	GroupName string `json:"-" db:"-"`
}

// IsLinked reports whether the modifier carries a POS modifier id.
func (m *ModifierItem) IsLinked() bool {
	return m.CloverModifierID != nil && *m.CloverModifierID != ""
}

// Extra returns the extra price, treating NULL as zero.
func (m *ModifierItem) Extra() float64 {
	if m.ExtraPrice == nil {
		return 0
	}
	return *m.ExtraPrice
}
