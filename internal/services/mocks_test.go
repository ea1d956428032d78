package services

import (
	"context"
	"time"

	"findixi/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) GetByMerchantID(ctx context.Context, merchantID int64) (*models.Connection, error) {
	args := m.Called(ctx, merchantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockConnectionRepository) UpdateTokens(ctx context.Context, connectionID int64, tokens *models.TokenPair) error {
	args := m.Called(ctx, connectionID, tokens)
	return args.Error(0)
}

func (m *MockConnectionRepository) SaveOrderType(ctx context.Context, connectionID int64, orderType *models.OrderType) error {
	args := m.Called(ctx, connectionID, orderType)
	return args.Error(0)
}

func (m *MockConnectionRepository) ListPage(ctx context.Context, afterID int64, limit int) ([]*models.Connection, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Connection), args.Error(1)
}

type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) MenuIDs(ctx context.Context, merchantID int64) ([]int64, error) {
	args := m.Called(ctx, merchantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockCatalogRepository) ProductsByIDs(ctx context.Context, menuIDs, productIDs []int64) (map[int64]*models.Product, error) {
	args := m.Called(ctx, menuIDs, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*models.Product), args.Error(1)
}

func (m *MockCatalogRepository) ModifiersByIDs(ctx context.Context, modifierIDs []int64) (map[int64]*models.ModifierItem, error) {
	args := m.Called(ctx, modifierIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int64]*models.ModifierItem), args.Error(1)
}

func (m *MockCatalogRepository) ProductIDsByCloverItems(ctx context.Context, merchantID int64, cloverItemIDs []string) (map[string]int64, error) {
	args := m.Called(ctx, merchantID, cloverItemIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

type MockTaxRepository struct {
	mock.Mock
}

func (m *MockTaxRepository) RatesByMerchant(ctx context.Context, merchantID int64) ([]models.TaxRate, error) {
	args := m.Called(ctx, merchantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TaxRate), args.Error(1)
}

func (m *MockTaxRepository) LinksForProducts(ctx context.Context, productIDs []int64) ([]models.ProductTaxLink, error) {
	args := m.Called(ctx, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProductTaxLink), args.Error(1)
}

func (m *MockTaxRepository) UpsertRates(ctx context.Context, merchantID int64, rates []models.TaxRate) error {
	args := m.Called(ctx, merchantID, rates)
	return args.Error(0)
}

func (m *MockTaxRepository) ReplaceProductLinks(ctx context.Context, rateIDs []int64, links []models.ProductTaxLink) error {
	args := m.Called(ctx, rateIDs, links)
	return args.Error(0)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByLinkToken(ctx context.Context, token string) (*models.Order, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockOrderRepository) CreateWithItems(ctx context.Context, order *models.NewOrder, items []models.OrderLineItem) (*models.Order, error) {
	args := m.Called(ctx, order, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockReceiptStore struct {
	mock.Mock
}

func (m *MockReceiptStore) SaveReceipt(ctx context.Context, receipt *Receipt) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockReceiptStore) EnsureBucketExists(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) GetOrderStatus(ctx context.Context, linkToken string) (*models.Order, error) {
	args := m.Called(ctx, linkToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *MockCacheService) SetOrderStatus(ctx context.Context, linkToken string, order *models.Order, ttl time.Duration) error {
	args := m.Called(ctx, linkToken, order, ttl)
	return args.Error(0)
}

func (m *MockCacheService) DeleteOrderStatus(ctx context.Context, linkToken string) error {
	args := m.Called(ctx, linkToken)
	return args.Error(0)
}

func (m *MockCacheService) IsRateLimited(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCacheService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCacheService) Close() error {
	args := m.Called()
	return args.Error(0)
}
