package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"findixi/internal/clover"
	"findixi/internal/common"
	"findixi/internal/models"
	"findixi/internal/repositories"
)

// refreshSkew is how close to expiry a stored token is refreshed before use.
const refreshSkew = 120 * time.Second

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// TokenManager owns the per-merchant POS token pair.
type TokenManager struct {
	connections repositories.ConnectionRepository
	refresher   TokenRefresher
	now         func() time.Time
}

func NewTokenManager(connections repositories.ConnectionRepository, refresher TokenRefresher) *TokenManager {
	return &TokenManager{connections: connections, refresher: refresher, now: time.Now}
}

// NeedsRefresh reports whether conn's token expires within window of now.
// A missing or unparsable expiry always needs a refresh.
func NeedsRefresh(conn *models.Connection, now time.Time, window time.Duration) bool {
	expiry, ok := conn.ExpiryTime()
	if !ok {
		return true
	}
	return expiry.Sub(now) < window
}

// Refresh exchanges conn's refresh token and persists the new pair on conn
// and in storage. A failed exchange is reported as NeedsReconnect.
func (m *TokenManager) Refresh(ctx context.Context, conn *models.Connection) error {
	if !conn.HasRefreshToken() {
		return common.NewNeedsReconnectError(errors.New("no refresh token on file"))
	}
	pair, err := m.refresher.Refresh(ctx, *conn.RefreshToken)
	if err != nil {
		log.Printf("WARN: [clover-token] refresh failed for merchant %d: %v", conn.MerchantID, err)
		return common.NewNeedsReconnectError(err)
	}

	conn.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		conn.RefreshToken = &pair.RefreshToken
	}
	if !pair.ExpiresAt.IsZero() {
		expires := pair.ExpiresAt.UTC().Format(time.RFC3339Nano)
		conn.ExpiresAt = &expires
	}

	// The new access token is usable even if storing it fails.
	if err := m.connections.UpdateTokens(ctx, conn.ID, pair); err != nil {
		log.Printf("ERROR: [clover-token] failed to persist refreshed tokens for merchant %d: %v", conn.MerchantID, err)
	}
	return nil
}

// Begin starts a request-scoped token session for conn, refreshing first
// when the stored token is missing an expiry or is about to expire.
func (m *TokenManager) Begin(ctx context.Context, conn *models.Connection) (*TokenSession, error) {
	if NeedsRefresh(conn, m.now(), refreshSkew) {
		if err := m.Refresh(ctx, conn); err != nil {
			return nil, err
		}
	}
	return &TokenSession{manager: m, conn: conn}, nil
}

// WithValidToken loads the merchant's connection and returns an access token
// that is not about to expire.
func (m *TokenManager) WithValidToken(ctx context.Context, merchantID int64) (string, error) {
	conn, err := m.connections.GetByMerchantID(ctx, merchantID)
	if err != nil {
		if errors.Is(err, common.ErrConnectionNotFound) {
			return "", common.NewNotFoundError(common.ErrConnectionNotFound.Error(), err)
		}
		return "", common.NewPersistenceError("failed to load POS connection", err)
	}
	session, err := m.Begin(ctx, conn)
	if err != nil {
		return "", err
	}
	return session.AccessToken(), nil
}

// TokenSession carries the access token through one request. At most one
// 401 per session triggers a refresh and retry.
type TokenSession struct {
	manager *TokenManager
	conn    *models.Connection
	retried bool
}

func (s *TokenSession) AccessToken() string {
	return s.conn.AccessToken
}

func (s *TokenSession) Connection() *models.Connection {
	return s.conn
}

// Do runs call with the current access token. The first 401 of the session
// refreshes the token and runs call once more; any later 401 is reported as
// NeedsReconnect.
func (s *TokenSession) Do(ctx context.Context, call func(accessToken string) error) error {
	err := call(s.conn.AccessToken)
	if !clover.IsUnauthorized(err) {
		return err
	}
	if s.retried || !s.conn.HasRefreshToken() {
		return common.NewNeedsReconnectError(err)
	}

	s.retried = true
	log.Printf("WARN: [clover-token] 401 from POS for merchant %d, refreshing token", s.conn.MerchantID)
	if refreshErr := s.manager.Refresh(ctx, s.conn); refreshErr != nil {
		return common.NewNeedsReconnectError(fmt.Errorf("%w (after %v)", refreshErr, err))
	}

	err = call(s.conn.AccessToken)
	if clover.IsUnauthorized(err) {
		return common.NewNeedsReconnectError(err)
	}
	return err
}
