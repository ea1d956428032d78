package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"findixi/internal/caching"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"

	"github.com/google/uuid"
)

const orderStatusTTL = 30 * time.Second

// OrderService runs the create-order pipeline and serves order status lookups.
type OrderService interface {
	Submit(ctx context.Context, req *models.SubmitOrderRequest, userID *uuid.UUID) (*models.SubmitOrderResult, error)
	StatusByLinkToken(ctx context.Context, token string) (*models.Order, error)
}

type OrderServiceOption func(*orderService)

// WithReceiptStore uploads a receipt snapshot after every created order.
func WithReceiptStore(store ReceiptStore) OrderServiceOption {
	return func(s *orderService) { s.receipts = store }
}

// WithStatusCache caches status lookups by order-link token.
func WithStatusCache(cache caching.CacheService) OrderServiceOption {
	return func(s *orderService) { s.cache = cache }
}

type orderService struct {
	posConfigured bool
	connections   repositories.ConnectionRepository
	orders        repositories.OrderRepository
	taxes         repositories.TaxRepository
	catalog       *CatalogResolver
	tokens        *TokenManager
	orderTypes    *OrderTypeResolver
	builder       *RemoteOrderBuilder
	receipts      ReceiptStore
	cache         caching.CacheService
	now           func() time.Time
}

func NewOrderService(posConfigured bool, connections repositories.ConnectionRepository, orders repositories.OrderRepository,
	taxes repositories.TaxRepository, catalog *CatalogResolver, tokens *TokenManager, orderTypes *OrderTypeResolver,
	builder *RemoteOrderBuilder, opts ...OrderServiceOption) OrderService {
	s := &orderService{
		posConfigured: posConfigured,
		connections:   connections,
		orders:        orders,
		taxes:         taxes,
		catalog:       catalog,
		tokens:        tokens,
		orderTypes:    orderTypes,
		builder:       builder,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// remoteOutcome is what the POS step produced for persistence.
type remoteOutcome struct {
	orderID     string
	checkoutURL string
	sessionID   string
	warning     string
}

// Submit validates the cart, pushes it to the POS and records the order.
// Every validation step runs before the first POS call.
func (s *orderService) Submit(ctx context.Context, req *models.SubmitOrderRequest, userID *uuid.UUID) (*models.SubmitOrderResult, error) {
	sub, err := NormalizeSubmission(req)
	if err != nil {
		return nil, err
	}
	if !s.posConfigured {
		return nil, common.NewConfigurationError("POS client credentials are not configured")
	}

	if sub.IdempotencyKey != "" {
		existing, err := s.findByIdempotencyKey(ctx, sub.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &models.SubmitOrderResult{OK: true, Reused: true, Order: existing}, nil
		}
	}

	conn, err := s.connections.GetByMerchantID(ctx, sub.MerchantID)
	if err != nil {
		if errors.Is(err, common.ErrConnectionNotFound) {
			return nil, common.NewNotFoundError("POS is not connected for this merchant", err)
		}
		return nil, common.NewPersistenceError("failed to load POS connection", err)
	}
	if conn.PosMerchantID() == "" {
		return nil, common.NewValidationError("POS connection has no merchant id, reconnect the account", nil)
	}

	lines, err := s.catalog.Resolve(ctx, sub.MerchantID, sub.Items)
	if err != nil {
		return nil, err
	}
	taxes, err := LoadTaxResolver(ctx, s.taxes, sub.MerchantID, uniqueProductIDs(sub.Items))
	if err != nil {
		return nil, err
	}
	cart, err := PriceCart(lines, taxes)
	if err != nil {
		return nil, err
	}

	session, err := s.tokens.Begin(ctx, conn)
	if err != nil {
		return nil, err
	}

	linkToken := uuid.NewString()
	outcome, err := s.pushToPOS(ctx, session, conn, cart, sub, linkToken)
	if err != nil {
		return nil, err
	}

	order, reused, err := s.persist(ctx, conn, sub, cart, outcome, linkToken, userID)
	if err != nil {
		return nil, err
	}
	if reused {
		return &models.SubmitOrderResult{OK: true, Reused: true, Order: order}, nil
	}

	subtotal, tax := cart.Subtotal(), cart.Tax()
	order.Subtotal, order.Tax = &subtotal, &tax
	s.saveReceipt(ctx, order, sub, cart)

	result := &models.SubmitOrderResult{
		OK:             true,
		Order:          order,
		OrderLinkToken: linkToken,
	}
	if outcome.orderID != "" {
		result.CloverOrderID = &outcome.orderID
	}
	if outcome.checkoutURL != "" {
		result.CheckoutURL = &outcome.checkoutURL
	}
	if outcome.sessionID != "" {
		result.CheckoutSessionID = &outcome.sessionID
	}
	if outcome.warning != "" {
		result.OrderTypeWarning = &outcome.warning
	}
	return result, nil
}

func (s *orderService) findByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	existing, err := s.orders.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, common.NewPersistenceError("failed to look up idempotency key", err)
	}
	return existing, nil
}

func (s *orderService) pushToPOS(ctx context.Context, session *TokenSession, conn *models.Connection, cart *PricedCart,
	sub *models.OrderSubmission, linkToken string) (*remoteOutcome, error) {
	if sub.Mode == models.ModeDineIn {
		orderID, err := s.builder.CreateDineIn(ctx, session, conn, cart, sub.Table)
		if err != nil {
			return nil, err
		}
		return &remoteOutcome{orderID: orderID}, nil
	}

	orderType, err := s.orderTypes.Resolve(ctx, session, conn)
	if err != nil {
		return nil, err
	}
	pickup, err := s.builder.CreatePickupCheckout(ctx, session, conn, cart, orderType, sub, linkToken)
	if err != nil {
		return nil, err
	}
	return &remoteOutcome{
		orderID:     pickup.OrderID,
		checkoutURL: pickup.CheckoutURL,
		sessionID:   pickup.SessionID,
		warning:     pickup.Warning,
	}, nil
}

// persist writes the order and its lines. A concurrent duplicate of the
// same idempotency key resolves to the order that won the race.
func (s *orderService) persist(ctx context.Context, conn *models.Connection, sub *models.OrderSubmission, cart *PricedCart,
	outcome *remoteOutcome, linkToken string, userID *uuid.UUID) (*models.Order, bool, error) {
	newOrder := buildNewOrder(conn, sub, cart, outcome, linkToken, userID)
	order, err := s.orders.CreateWithItems(ctx, newOrder, buildLineItems(cart))
	if err == nil {
		return order, false, nil
	}

	if errors.Is(err, repositories.ErrDuplicateIdempotencyKey) {
		existing, findErr := s.findByIdempotencyKey(ctx, sub.IdempotencyKey)
		if findErr != nil {
			return nil, false, findErr
		}
		if existing != nil {
			log.Printf("WARN: [clover-create-order] idempotency key %q raced, POS order %q for merchant %d is a duplicate of order %d",
				sub.IdempotencyKey, outcome.orderID, sub.MerchantID, existing.ID)
			return existing, true, nil
		}
	}

	log.Printf("ERROR: [clover-create-order] POS order %q (checkout session %q) for merchant %d (%s) was not recorded: %v",
		outcome.orderID, outcome.sessionID, sub.MerchantID, conn.PosMerchantID(), err)
	return nil, false, common.NewPersistenceError("failed to record order", err)
}

func buildNewOrder(conn *models.Connection, sub *models.OrderSubmission, cart *PricedCart, outcome *remoteOutcome,
	linkToken string, userID *uuid.UUID) *models.NewOrder {
	order := &models.NewOrder{
		MerchantID:        sub.MerchantID,
		CloverMerchantID:  conn.PosMerchantID(),
		CloverOrderID:     optionalString(outcome.orderID),
		CheckoutSessionID: optionalString(outcome.sessionID),
		CheckoutURL:       optionalString(outcome.checkoutURL),
		Subtotal:          cart.Subtotal(),
		TaxTotal:          cart.Tax(),
		Total:             cart.Total(),
		Status:            models.StatusPending,
		IdempotencyKey:    optionalString(sub.IdempotencyKey),
		Mode:              sub.Mode,
		Table:             optionalString(sub.Table),
		Source:            sub.Source,
		OrderLinkToken:    linkToken,
	}
	if sub.Mode == models.ModeDineIn {
		order.Status = models.StatusSent
	}
	if c := sub.Customer; c != nil {
		order.CustomerEmail = optionalString(strings.TrimSpace(c.Email))
		order.CustomerPhone = optionalString(strings.TrimSpace(c.Phone))
		order.CustomerName = optionalString(c.DisplayName())
	}
	if userID != nil {
		id := userID.String()
		order.CustomerUserID = &id
	}
	return order
}

func buildLineItems(cart *PricedCart) []models.OrderLineItem {
	items := make([]models.OrderLineItem, 0, len(cart.Lines))
	for i := range cart.Lines {
		line := &cart.Lines[i]
		mods := models.LineModifiers{Items: make([]models.AppliedModifier, 0, len(line.Modifiers))}
		for _, mod := range line.Modifiers {
			applied := models.AppliedModifier{
				ID:               mod.ID,
				CloverModifierID: *mod.CloverModifierID,
				Name:             optionalString(mod.Name),
				ExtraPrice:       mod.Extra(),
				Group:            optionalString(mod.GroupName),
			}
			mods.Items = append(mods.Items, applied)
		}
		mods.Note = optionalString(line.Item.Note)

		items = append(items, models.OrderLineItem{
			ProductID:     line.Product.ID,
			CloverItemID:  *line.Product.CloverItemID,
			Quantity:      line.Item.Quantity,
			PriceSnapshot: line.UnitPrice(),
			Modifiers:     mods,
		})
	}
	return items
}

func (s *orderService) saveReceipt(ctx context.Context, order *models.Order, sub *models.OrderSubmission, cart *PricedCart) {
	if s.receipts == nil {
		return
	}
	receipt := NewReceipt(order, sub, cart, s.now())
	if err := s.receipts.SaveReceipt(ctx, receipt); err != nil {
		log.Printf("WARN: [receipts] failed to store %s: %v", receipt.ObjectName(), err)
	}
}

// StatusByLinkToken returns the order summary behind a client-visible link token.
func (s *orderService) StatusByLinkToken(ctx context.Context, token string) (*models.Order, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, common.NewValidationError("order token required", nil)
	}

	if s.cache != nil {
		cached, err := s.cache.GetOrderStatus(ctx, token)
		if err != nil {
			log.Printf("WARN: [order-status] cache read failed: %v", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	order, err := s.orders.GetByLinkToken(ctx, token)
	if err != nil {
		if errors.Is(err, repositories.ErrOrderNotFound) {
			return nil, common.NewNotFoundError("order not found", err)
		}
		return nil, common.NewPersistenceError(fmt.Sprintf("failed to load order for token %s", token), err)
	}

	if s.cache != nil {
		if err := s.cache.SetOrderStatus(ctx, token, order, orderStatusTTL); err != nil {
			log.Printf("WARN: [order-status] cache write failed: %v", err)
		}
	}
	return order, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
