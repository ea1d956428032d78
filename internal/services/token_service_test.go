package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TokenManagerTestSuite struct {
	suite.Suite
	ctx         context.Context
	now         time.Time
	pos         *posHarness
	connections *MockConnectionRepository
	manager     *TokenManager
}

func (s *TokenManagerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.pos = newPOSHarness(s.T())
	s.connections = new(MockConnectionRepository)
	s.manager = NewTokenManager(s.connections, s.pos.oauth)
	s.manager.now = func() time.Time { return s.now }
}

func TestTokenManagerTestSuite(t *testing.T) {
	suite.Run(t, new(TokenManagerTestSuite))
}

// createOrder is a representative POS call made through a session.
func (s *TokenManagerTestSuite) createOrder(session *TokenSession) (string, error) {
	var id string
	err := session.Do(s.ctx, func(token string) error {
		var err error
		id, err = s.pos.client.CreateOrder(s.ctx, token, testPOSMerchantID, "note")
		return err
	})
	return id, err
}

func (s *TokenManagerTestSuite) TestNeedsRefresh() {
	conn := testConnection(s.now)
	assert.False(s.T(), NeedsRefresh(conn, s.now, refreshSkew))

	conn.ExpiresAt = strPtr(s.now.Add(60 * time.Second).Format(time.RFC3339))
	assert.True(s.T(), NeedsRefresh(conn, s.now, refreshSkew))

	conn.ExpiresAt = nil
	assert.True(s.T(), NeedsRefresh(conn, s.now, refreshSkew))

	conn.ExpiresAt = strPtr("not a date")
	assert.True(s.T(), NeedsRefresh(conn, s.now, refreshSkew))

	conn.ExpiresAt = strPtr("2026-03-01 12:10:00.123456+00")
	assert.False(s.T(), NeedsRefresh(conn, s.now, refreshSkew))
	assert.True(s.T(), NeedsRefresh(conn, s.now, time.Hour))
}

func (s *TokenManagerTestSuite) TestBegin_ValidTokenNoRefresh() {
	session, err := s.manager.Begin(s.ctx, testConnection(s.now))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "valid-token", session.AccessToken())
	assert.Equal(s.T(), 0, s.pos.fake.Calls(testhelpers.RouteRefresh))
}

func (s *TokenManagerTestSuite) TestBegin_ExpiringSoonRefreshesOnceBeforePOSCalls() {
	conn := testConnection(s.now)
	conn.AccessToken = "old-token"
	conn.ExpiresAt = strPtr(s.now.Add(60 * time.Second).Format(time.RFC3339))
	s.connections.On("UpdateTokens", s.ctx, int64(1), mock.AnythingOfType("*models.TokenPair")).Return(nil).Once()

	session, err := s.manager.Begin(s.ctx, conn)
	require.NoError(s.T(), err)
	_, err = s.createOrder(session)
	require.NoError(s.T(), err)

	assert.Equal(s.T(), 1, s.pos.fake.Calls(testhelpers.RouteRefresh))
	assert.Equal(s.T(), []string{testhelpers.RouteRefresh, testhelpers.RouteCreateOrder}, s.pos.fake.Order())
	assert.Equal(s.T(), s.pos.fake.AccessToken, conn.AccessToken)
	assert.NotEqual(s.T(), "refresh-0", *conn.RefreshToken)
	expiry, ok := conn.ExpiryTime()
	require.True(s.T(), ok)
	assert.True(s.T(), expiry.After(time.Now()))
	s.connections.AssertExpectations(s.T())
}

func (s *TokenManagerTestSuite) TestBegin_NoRefreshTokenNeedsReconnect() {
	conn := testConnection(s.now)
	conn.ExpiresAt = nil
	conn.RefreshToken = nil

	_, err := s.manager.Begin(s.ctx, conn)
	require.Error(s.T(), err)
	assert.Equal(s.T(), common.KindNeedsReconnect, common.KindOf(err))
	assert.True(s.T(), errors.Is(err, common.ErrNeedsReconnect))
	assert.Equal(s.T(), 0, s.pos.fake.Calls(testhelpers.RouteRefresh))
}

func (s *TokenManagerTestSuite) TestBegin_RefreshRejectedNeedsReconnect() {
	conn := testConnection(s.now)
	conn.ExpiresAt = nil
	s.pos.fake.Script(testhelpers.RouteRefresh, http.StatusBadRequest, `{"message":"invalid refresh token"}`)

	_, err := s.manager.Begin(s.ctx, conn)
	assert.Equal(s.T(), common.KindNeedsReconnect, common.KindOf(err))
	s.connections.AssertNotCalled(s.T(), "UpdateTokens", mock.Anything, mock.Anything, mock.Anything)
}

func (s *TokenManagerTestSuite) TestRefresh_PersistFailureIsNotFatal() {
	conn := testConnection(s.now)
	s.connections.On("UpdateTokens", s.ctx, int64(1), mock.Anything).Return(errors.New("db down")).Once()

	require.NoError(s.T(), s.manager.Refresh(s.ctx, conn))
	assert.Equal(s.T(), s.pos.fake.AccessToken, conn.AccessToken)
}

func (s *TokenManagerTestSuite) TestRefresh_KeepsRefreshTokenWhenNotRotated() {
	conn := testConnection(s.now)
	s.pos.fake.Script(testhelpers.RouteRefresh, http.StatusOK, `{"access_token":"fresh"}`)
	s.connections.On("UpdateTokens", s.ctx, int64(1), &models.TokenPair{AccessToken: "fresh"}).Return(nil).Once()

	require.NoError(s.T(), s.manager.Refresh(s.ctx, conn))
	assert.Equal(s.T(), "fresh", conn.AccessToken)
	assert.Equal(s.T(), "refresh-0", *conn.RefreshToken)
	assert.Equal(s.T(), s.now.Add(time.Hour).UTC().Format(time.RFC3339), *conn.ExpiresAt)
	s.connections.AssertExpectations(s.T())
}

func (s *TokenManagerTestSuite) TestDo_401RefreshesAndRetriesOnce() {
	conn := testConnection(s.now)
	conn.AccessToken = "revoked"
	s.connections.On("UpdateTokens", s.ctx, int64(1), mock.Anything).Return(nil).Once()

	session, err := s.manager.Begin(s.ctx, conn)
	require.NoError(s.T(), err)
	id, err := s.createOrder(session)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), id)

	assert.Equal(s.T(), 1, s.pos.fake.Calls(testhelpers.RouteRefresh))
	assert.Equal(s.T(), 2, s.pos.fake.Calls(testhelpers.RouteCreateOrder))

	// the session has used its retry; later calls still work with the new token
	_, err = s.createOrder(session)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, s.pos.fake.Calls(testhelpers.RouteRefresh))
}

func (s *TokenManagerTestSuite) TestDo_Second401NeedsReconnect() {
	conn := testConnection(s.now)
	s.connections.On("UpdateTokens", s.ctx, int64(1), mock.Anything).Return(nil).Once()
	s.pos.fake.Script(testhelpers.RouteCreateOrder, http.StatusUnauthorized, `{"message":"401"}`)
	s.pos.fake.Script(testhelpers.RouteCreateOrder, http.StatusUnauthorized, `{"message":"401"}`)

	session, err := s.manager.Begin(s.ctx, conn)
	require.NoError(s.T(), err)
	_, err = s.createOrder(session)

	require.Error(s.T(), err)
	assert.Equal(s.T(), common.KindNeedsReconnect, common.KindOf(err))
	assert.Equal(s.T(), 1, s.pos.fake.Calls(testhelpers.RouteRefresh))
	assert.Equal(s.T(), 2, s.pos.fake.Calls(testhelpers.RouteCreateOrder))
}

func (s *TokenManagerTestSuite) TestDo_401AfterRetryUsedNeedsReconnect() {
	conn := testConnection(s.now)
	s.connections.On("UpdateTokens", s.ctx, int64(1), mock.Anything).Return(nil).Once()
	s.pos.fake.Script(testhelpers.RouteCreateOrder, http.StatusUnauthorized, `{}`)

	session, err := s.manager.Begin(s.ctx, conn)
	require.NoError(s.T(), err)
	_, err = s.createOrder(session)
	require.NoError(s.T(), err)

	s.pos.fake.Script(testhelpers.RouteCreateOrder, http.StatusUnauthorized, `{}`)
	_, err = s.createOrder(session)
	assert.Equal(s.T(), common.KindNeedsReconnect, common.KindOf(err))
	assert.Equal(s.T(), 1, s.pos.fake.Calls(testhelpers.RouteRefresh))
}

func (s *TokenManagerTestSuite) TestDo_OtherErrorsPassThrough() {
	s.pos.fake.Script(testhelpers.RouteCreateOrder, http.StatusBadRequest, `{"message":"bad"}`)

	session, err := s.manager.Begin(s.ctx, testConnection(s.now))
	require.NoError(s.T(), err)
	_, err = s.createOrder(session)
	require.Error(s.T(), err)
	assert.NotEqual(s.T(), common.KindNeedsReconnect, common.KindOf(err))
	assert.Equal(s.T(), 0, s.pos.fake.Calls(testhelpers.RouteRefresh))
}

func (s *TokenManagerTestSuite) TestWithValidToken() {
	s.connections.On("GetByMerchantID", s.ctx, testMerchantID).Return(testConnection(s.now), nil).Once()
	token, err := s.manager.WithValidToken(s.ctx, testMerchantID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "valid-token", token)

	s.connections.On("GetByMerchantID", s.ctx, int64(8)).Return(nil, common.ErrConnectionNotFound).Once()
	_, err = s.manager.WithValidToken(s.ctx, 8)
	assert.Equal(s.T(), common.KindNotFound, common.KindOf(err))
}
