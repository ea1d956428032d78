package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"findixi/internal/caching"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Submit(ctx context.Context, req *models.SubmitOrderRequest, userID *uuid.UUID) (*models.SubmitOrderResult, error) {
	args := m.Called(ctx, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubmitOrderResult), args.Error(1)
}

func (m *MockOrderService) StatusByLinkToken(ctx context.Context, token string) (*models.Order, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

type MockTaxRateSyncer struct {
	mock.Mock
}

func (m *MockTaxRateSyncer) Sync(ctx context.Context, merchantID int64) (*services.TaxSyncResult, error) {
	args := m.Called(ctx, merchantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TaxSyncResult), args.Error(1)
}

type MockTokenRefresher struct {
	mock.Mock
}

func (m *MockTokenRefresher) Run(ctx context.Context) (*services.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SweepResult), args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newLimiter(t *testing.T) (caching.CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return caching.NewCacheServiceFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func newRequest(method, target, body string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

func TestCreateOrder_Success(t *testing.T) {
	svc := new(MockOrderService)
	limiter, _ := newLimiter(t)
	h := NewOrderHandlers(svc, limiter, 5)

	checkout := "https://checkout.example/CS1"
	svc.On("Submit", mock.Anything, mock.MatchedBy(func(req *models.SubmitOrderRequest) bool {
		return req.MerchantID.String() == "7" && len(req.Items) == 1 && req.Table.Value == "4"
	}), (*uuid.UUID)(nil)).Return(&models.SubmitOrderResult{
		OK:             true,
		Order:          &models.Order{ID: 501, Status: models.StatusPending, Total: decimal.RequireFromString("25.3")},
		CheckoutURL:    &checkout,
		OrderLinkToken: "tok",
	}, nil).Once()

	rec, c := newRequest(http.MethodPost, "/v1/orders", `{"idComercio": 7, "mesa": 4, "items": [{"idProducto": 100}]}`)
	require.NoError(t, h.CreateOrder(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"checkout_url":"https://checkout.example/CS1"`)
	assert.Contains(t, rec.Body.String(), `"order_link_token":"tok"`)
	assert.NotContains(t, rec.Body.String(), `"reused"`)
	svc.AssertExpectations(t)
}

func TestCreateOrder_PassesAuthenticatedUser(t *testing.T) {
	svc := new(MockOrderService)
	h := NewOrderHandlers(svc, nil, 0)
	userID := uuid.New()

	svc.On("Submit", mock.Anything, mock.Anything, &userID).
		Return(&models.SubmitOrderResult{OK: true, Reused: true, Order: &models.Order{ID: 9}}, nil).Once()

	rec, c := newRequest(http.MethodPost, "/v1/orders", `{"idComercio": 7, "items": [{"idProducto": 100}], "idempotencyKey": "k"}`)
	c.SetRequest(c.Request().WithContext(common.WithUserID(c.Request().Context(), userID)))
	require.NoError(t, h.CreateOrder(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reused":true`)
	svc.AssertExpectations(t)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	remote := common.NewRemoteError("could not create the POS order", errors.New("status 422")).
		WithDetail("status", 422).
		WithDetail("path", "/v3/merchants/M/orders")

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"validation", common.NewValidationError("items required", nil), http.StatusBadRequest, `{"error":"items required"}`},
		{"not found", common.NewNotFoundError("POS is not connected for this merchant", common.ErrConnectionNotFound), http.StatusNotFound,
			`{"error":"POS is not connected for this merchant"}`},
		{"needs reconnect", common.NewNeedsReconnectError(errors.New("401")), http.StatusUnauthorized,
			`{"error":"POS authorization expired, reconnect the account","needs_reconnect":true}`},
		{"remote", remote, http.StatusBadGateway,
			`{"error":"could not create the POS order","details":{"status":422,"path":"/v3/merchants/M/orders"}}`},
		{"configuration", common.NewConfigurationError("POS client credentials are not configured"), http.StatusInternalServerError,
			`{"error":"POS client credentials are not configured"}`},
		{"persistence", common.NewPersistenceError("failed to record order", errors.New("disk full")), http.StatusInternalServerError,
			`{"error":"failed to record order"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockOrderService)
			svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err).Once()
			h := NewOrderHandlers(svc, nil, 0)

			rec, c := newRequest(http.MethodPost, "/v1/orders", `{"idComercio": 7, "items": [{"idProducto": 1}]}`)
			require.NoError(t, h.CreateOrder(c))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	svc := new(MockOrderService)
	h := NewOrderHandlers(svc, nil, 0)

	rec, c := newRequest(http.MethodPost, "/v1/orders", `{"idComercio": `)
	require.NoError(t, h.CreateOrder(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid JSON body"}`, rec.Body.String())
	svc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_RateLimited(t *testing.T) {
	svc := new(MockOrderService)
	limiter, mr := newLimiter(t)
	h := NewOrderHandlers(svc, limiter, 2)
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SubmitOrderResult{OK: true, Order: &models.Order{ID: 1}}, nil).Twice()

	body := `{"idComercio": 7, "items": [{"idProducto": 1}]}`
	for i := 0; i < 2; i++ {
		rec, c := newRequest(http.MethodPost, "/v1/orders", body)
		require.NoError(t, h.CreateOrder(c))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec, c := newRequest(http.MethodPost, "/v1/orders", body)
	require.NoError(t, h.CreateOrder(c))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	svc.AssertNumberOfCalls(t, "Submit", 2)

	// another merchant has its own budget
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SubmitOrderResult{OK: true, Order: &models.Order{ID: 2}}, nil).Once()
	rec, c = newRequest(http.MethodPost, "/v1/orders", `{"idComercio": 8, "items": [{"idProducto": 1}]}`)
	require.NoError(t, h.CreateOrder(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Redis down fails open
	mr.Close()
	svc.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.SubmitOrderResult{OK: true, Order: &models.Order{ID: 3}}, nil).Once()
	rec, c = newRequest(http.MethodPost, "/v1/orders", body)
	require.NoError(t, h.CreateOrder(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetOrderStatus(t *testing.T) {
	svc := new(MockOrderService)
	h := NewOrderHandlers(svc, nil, 0)
	svc.On("StatusByLinkToken", mock.Anything, "tok").
		Return(&models.Order{ID: 9, Status: models.StatusSent, Total: decimal.RequireFromString("12.5")}, nil).Once()
	svc.On("StatusByLinkToken", mock.Anything, "missing").
		Return(nil, common.NewNotFoundError("order not found", nil)).Once()

	rec, c := newRequest(http.MethodGet, "/v1/orders/status/tok", "")
	c.SetParamNames("token")
	c.SetParamValues("tok")
	require.NoError(t, h.GetOrderStatus(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"sent"`)
	assert.Contains(t, rec.Body.String(), `"ok":true`)

	rec, c = newRequest(http.MethodGet, "/v1/orders/status/missing", "")
	c.SetParamNames("token")
	c.SetParamValues("missing")
	require.NoError(t, h.GetOrderStatus(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncTaxRates(t *testing.T) {
	syncer := new(MockTaxRateSyncer)
	h := NewCloverHandlers(syncer, new(MockTokenRefresher))
	syncer.On("Sync", mock.Anything, int64(7)).Return(&services.TaxSyncResult{TaxRates: 2, ProductMappings: 5}, nil).Once()

	rec, c := newRequest(http.MethodPost, "/v1/clover/tax-rates/sync?idComercio=7", "")
	require.NoError(t, h.SyncTaxRates(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"taxRates":2,"productMappings":5}`, rec.Body.String())

	rec, c = newRequest(http.MethodPost, "/v1/clover/tax-rates/sync?idComercio=abc", "")
	require.NoError(t, h.SyncTaxRates(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"idComercio must be a positive integer"}`, rec.Body.String())
	syncer.AssertNumberOfCalls(t, "Sync", 1)
}

func TestRefreshTokens(t *testing.T) {
	sweeper := new(MockTokenRefresher)
	h := NewCloverHandlers(new(MockTaxRateSyncer), sweeper)
	sweeper.On("Run", mock.Anything).Return(&services.SweepResult{
		Total: 3, Refreshed: 1, Skipped: 1, Failed: 1,
		Failures: []services.SweepFailure{{MerchantID: 4, Error: "invalid_grant"}},
	}, nil).Once()

	rec, c := newRequest(http.MethodPost, "/v1/clover/refresh-tokens", "")
	require.NoError(t, h.RefreshTokens(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"total":3,"refreshed":1,"skipped":1,"failed":1,"failures":[{"idComercio":4,"error":"invalid_grant"}]}`,
		rec.Body.String())
}

func TestHealthChecks(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("down") })

	rec, c := newRequest(http.MethodGet, "/health", "")
	require.NoError(t, NewHealthHandlers(down, down, "test").LivenessCheck(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)

	tests := []struct {
		name     string
		db       Pinger
		cache    Pinger
		wantCode int
		wantBody string
	}{
		{"all healthy", healthy, healthy, http.StatusOK, `"redis":"healthy"`},
		{"no cache configured", healthy, nil, http.StatusOK, `"database":"healthy"`},
		{"database down", down, healthy, http.StatusServiceUnavailable, `"database":"unhealthy"`},
		{"redis down", healthy, down, http.StatusServiceUnavailable, `"redis":"unhealthy"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, c := newRequest(http.MethodGet, "/health/ready", "")
			require.NoError(t, NewHealthHandlers(tt.db, tt.cache, "test").ReadinessCheck(c))
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}
