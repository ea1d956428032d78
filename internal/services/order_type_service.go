package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"regexp"
	"strings"
	"sync/atomic"

	"findixi/internal/clover"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"
)

const (
	PickupOrderTypeName    = "Pickup (Findixi)"
	PickupOrderTypeNameAlt = "Pick Up (Findixi)"
)

var (
	whitespace         = regexp.MustCompile(`\s+`)
	nonAlphanumeric    = regexp.MustCompile(`[^a-z0-9]`)
	pickupSystemType   = regexp.MustCompile(`pickup|pick\s*up|take\s*out|takeout|to-go|togo|carry\s*out`)
	orderTypeNameKeys  = []string{"label", "name", "title", "displayName", "orderTypeName"}
	detectableNameKeys = []string{"label", "name", "title", "displayName"}
)

// normalizeKey lowercases, collapses whitespace and drops everything but letters and digits.
func normalizeKey(value string) string {
	name := strings.TrimSpace(whitespace.ReplaceAllString(strings.ToLower(value), " "))
	return nonAlphanumeric.ReplaceAllString(name, "")
}

var pickupKeys = map[string]struct{}{
	normalizeKey(PickupOrderTypeName):    {},
	normalizeKey(PickupOrderTypeNameAlt): {},
}

func orderTypeName(orderType map[string]any) string {
	return clover.StringField(orderType, orderTypeNameKeys...)
}

// detectNameKey returns the label field the merchant's order types use.
func detectNameKey(orderTypes []map[string]any) string {
	for _, key := range detectableNameKeys {
		for _, ot := range orderTypes {
			if _, ok := ot[key].(string); ok {
				return key
			}
		}
	}
	return "label"
}

func isPickupSystemType(systemType map[string]any) bool {
	var parts []string
	for _, key := range []string{"id", "name", "label", "displayName", "type", "code"} {
		if v := clover.StringField(systemType, key); v != "" {
			parts = append(parts, v)
		}
	}
	return pickupSystemType.MatchString(strings.ToLower(strings.Join(parts, " ")))
}

// orderTypeShape builds one candidate creation payload.
type orderTypeShape struct {
	withSystemType bool
	build          func(nameKey string) map[string]any
}

var orderTypeShapes = []orderTypeShape{
	{true, func(nameKey string) map[string]any { return map[string]any{nameKey: PickupOrderTypeName} }},
	{true, func(string) map[string]any { return map[string]any{"label": PickupOrderTypeName} }},
	{true, func(string) map[string]any { return map[string]any{"name": PickupOrderTypeName} }},
	{false, func(nameKey string) map[string]any { return map[string]any{nameKey: PickupOrderTypeName} }},
	{false, func(string) map[string]any { return map[string]any{"label": PickupOrderTypeName} }},
	{false, func(string) map[string]any { return map[string]any{"name": PickupOrderTypeName} }},
}

// OrderTypeResolver makes sure a merchant has a pickup order type on the POS
// and caches it on the connection.
type OrderTypeResolver struct {
	pos          POSClient
	connections  repositories.ConnectionRepository
	winningShape atomic.Int32
}

func NewOrderTypeResolver(pos POSClient, connections repositories.ConnectionRepository) *OrderTypeResolver {
	return &OrderTypeResolver{pos: pos, connections: connections}
}

// Resolve returns the merchant's pickup order type, discovering or creating
// it on first use.
func (r *OrderTypeResolver) Resolve(ctx context.Context, session *TokenSession, conn *models.Connection) (*models.OrderType, error) {
	if conn.OrderTypeID != nil && *conn.OrderTypeID != "" {
		name := PickupOrderTypeName
		if conn.OrderTypeName != nil && *conn.OrderTypeName != "" {
			name = *conn.OrderTypeName
		}
		return &models.OrderType{ID: *conn.OrderTypeID, Name: name}, nil
	}

	mid := conn.PosMerchantID()
	var orderTypes []map[string]any
	err := session.Do(ctx, func(token string) error {
		var err error
		orderTypes, err = r.pos.ListOrderTypes(ctx, token, mid)
		return err
	})
	if err != nil {
		return nil, orderTypeError(err)
	}

	var resolved *models.OrderType
	for _, ot := range orderTypes {
		id := clover.StringField(ot, "id")
		if _, ok := pickupKeys[normalizeKey(orderTypeName(ot))]; ok && id != "" {
			resolved = &models.OrderType{ID: id, Name: orderTypeName(ot)}
			break
		}
	}

	if resolved == nil {
		systemID, err := r.pickupSystemTypeID(ctx, session, mid)
		if err != nil {
			return nil, orderTypeError(err)
		}
		resolved, err = r.create(ctx, session, mid, detectNameKey(orderTypes), systemID)
		if err != nil {
			return nil, err
		}
	}

	if err := r.connections.SaveOrderType(ctx, conn.ID, resolved); err != nil {
		log.Printf("WARN: [clover-order-type] could not cache order type for merchant %d: %v", conn.MerchantID, err)
	} else {
		conn.OrderTypeID = &resolved.ID
		conn.OrderTypeName = &resolved.Name
	}
	return resolved, nil
}

// pickupSystemTypeID looks for a pickup-like system order type. Lookup
// failures are tolerated; only NeedsReconnect is returned.
func (r *OrderTypeResolver) pickupSystemTypeID(ctx context.Context, session *TokenSession, mid string) (string, error) {
	var systemTypes []map[string]any
	err := session.Do(ctx, func(token string) error {
		var err error
		systemTypes, err = r.pos.ListSystemOrderTypes(ctx, token, mid)
		return err
	})
	if err != nil {
		if isNeedsReconnect(err) {
			return "", err
		}
		log.Printf("WARN: [clover-order-type] system order types unavailable for %s, creating without one: %v", mid, err)
		return "", nil
	}
	for _, st := range systemTypes {
		if isPickupSystemType(st) {
			return clover.StringField(st, "id", "systemOrderTypeId", "systemOrderType", "code"), nil
		}
	}
	return "", nil
}

// shapeOrder returns shape indexes with the last winner first.
func (r *OrderTypeResolver) shapeOrder(systemID string) []int {
	winner := int(r.winningShape.Load())
	order := []int{winner}
	for i := range orderTypeShapes {
		if i != winner {
			order = append(order, i)
		}
	}
	var usable []int
	for _, i := range order {
		if orderTypeShapes[i].withSystemType && systemID == "" {
			continue
		}
		usable = append(usable, i)
	}
	return usable
}

func (r *OrderTypeResolver) create(ctx context.Context, session *TokenSession, mid, nameKey, systemID string) (*models.OrderType, error) {
	var lastErr error
	tried := make(map[string]struct{})
	for _, idx := range r.shapeOrder(systemID) {
		shape := orderTypeShapes[idx]
		payload := shape.build(nameKey)
		if shape.withSystemType {
			payload["systemOrderTypeId"] = systemID
		}
		// nameKey is often "label" itself; identical bodies are sent once
		signature, _ := json.Marshal(payload)
		if _, seen := tried[string(signature)]; seen {
			continue
		}
		tried[string(signature)] = struct{}{}

		var created map[string]any
		err := session.Do(ctx, func(token string) error {
			var err error
			created, err = r.pos.CreateOrderType(ctx, token, mid, payload)
			return err
		})
		if err != nil {
			if isNeedsReconnect(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		id := clover.StringField(created, "id")
		if id == "" {
			lastErr = errors.New("order type created without id")
			continue
		}

		r.winningShape.Store(int32(idx))
		name := orderTypeName(created)
		if name == "" {
			name = PickupOrderTypeName
		}
		return &models.OrderType{ID: id, Name: name}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no order type payload accepted")
	}
	return nil, orderTypeError(lastErr)
}

func orderTypeError(err error) error {
	if isNeedsReconnect(err) {
		return err
	}
	return remoteError("could not set up pickup order type on the POS, sync or reconnect", errors.Join(common.ErrOrderTypeUnavailable, err))
}
