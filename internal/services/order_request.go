package services

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"findixi/internal/common"
	"findixi/internal/models"
)

// NormalizeSubmission validates the raw create-order body and fills defaults.
// It never touches storage or the POS.
func NormalizeSubmission(req *models.SubmitOrderRequest) (*models.OrderSubmission, error) {
	merchantID, ok := positiveInt(req.MerchantRef().String())
	if !ok {
		return nil, common.NewValidationError("idComercio required", common.ErrInvalidItems)
	}
	if len(req.Items) == 0 {
		return nil, common.NewValidationError("items required", common.ErrInvalidItems)
	}

	sub := &models.OrderSubmission{
		MerchantID:     merchantID,
		Mode:           normalizeMode(req.ModeRef()),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		Customer:       req.Customer,
		TipsEnabled:    req.TipsEnabled == nil || *req.TipsEnabled,
	}
	if table := req.TableRef(); table.Set {
		sub.Table = table.Value
	}
	sub.Source = normalizeSource(req.Source, sub.Mode)

	for _, raw := range req.Items {
		item, ok := normalizeItem(raw)
		if !ok {
			return nil, common.NewValidationError("invalid items", common.ErrInvalidItems)
		}
		sub.Items = append(sub.Items, item)
	}

	if len(req.RedirectURLs) > 0 {
		sub.RedirectURLs = make(map[string]string, len(req.RedirectURLs))
		for key, value := range req.RedirectURLs {
			if s, ok := value.(string); ok {
				sub.RedirectURLs[key] = s
			}
		}
	}
	return sub, nil
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case models.ModeDineIn, "dine":
		return models.ModeDineIn
	default:
		return models.ModePickup
	}
}

func normalizeSource(source, mode string) string {
	switch s := strings.ToLower(strings.TrimSpace(source)); s {
	case models.SourceQR, models.SourceApp:
		return s
	}
	if mode == models.ModeDineIn {
		return models.SourceQR
	}
	return models.SourceApp
}

// MaxItemQuantity bounds a single cart line.
const MaxItemQuantity = 10000

func normalizeItem(raw models.CartItemInput) (models.CartItem, bool) {
	productID, ok := positiveInt(raw.ProductRef().String())
	if !ok {
		return models.CartItem{}, false
	}
	qty := int64(1)
	if raw.Quantity != nil {
		if qty, ok = positiveInt(raw.Quantity.String()); !ok || qty > MaxItemQuantity {
			return models.CartItem{}, false
		}
	}
	item := models.CartItem{
		ProductID:   productID,
		Quantity:    int(qty),
		ModifierIDs: modifierIDs(raw.ModifiersRef()),
	}
	if raw.Note != nil {
		item.Note = strings.TrimSpace(*raw.Note)
	}
	return item, true
}

// modifierIDs accepts numbers or {idOpcionItem}/{id} objects and keeps the
// positive integer ids.
func modifierIDs(raw json.RawMessage) []int64 {
	if len(raw) == 0 {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}
	var ids []int64
	for _, entry := range entries {
		var candidate json.Number
		var obj struct {
			IDOpcionItem *json.Number `json:"idOpcionItem"`
			ID           *json.Number `json:"id"`
		}
		switch {
		case json.Unmarshal(entry, &candidate) == nil:
		case json.Unmarshal(entry, &obj) == nil && obj.IDOpcionItem != nil:
			candidate = *obj.IDOpcionItem
		case obj.ID != nil:
			candidate = *obj.ID
		default:
			continue
		}
		if id, ok := positiveInt(candidate.String()); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// positiveInt parses a whole, positive number. "2" and "2.0" pass; "2.5",
// "0" and "-1" do not.
func positiveInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n > 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) || f <= 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
