package clover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"findixi/internal/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const refreshPath = "/oauth/v2/refresh"

// refreshStrategy is one way of encoding the refresh request body.
type refreshStrategy struct {
	name        string
	contentType string
	encode      func(refreshToken, clientID string) (string, error)
}

var refreshStrategies = []refreshStrategy{
	{
		name:        "json",
		contentType: "application/json",
		encode: func(refreshToken, clientID string) (string, error) {
			b, err := json.Marshal(map[string]string{"refresh_token": refreshToken, "client_id": clientID})
			return string(b), err
		},
	},
	{
		name:        "form",
		contentType: "application/x-www-form-urlencoded",
		encode: func(refreshToken, clientID string) (string, error) {
			return url.Values{"refresh_token": {refreshToken}, "client_id": {clientID}}.Encode(), nil
		},
	},
}

// OAuthClient exchanges refresh tokens for new token pairs. The strategy that
// last succeeded is tried first on later calls.
type OAuthClient struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	preferred  atomic.Int32
	now        func() time.Time
}

func NewOAuthClient(apiBase, clientID string, timeout time.Duration) *OAuthClient {
	return &OAuthClient{
		baseURL:  strings.TrimRight(apiBase, "/"),
		clientID: clientID,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		now: time.Now,
	}
}

// shouldFallback reports whether a rejected refresh is worth retrying with
// another body encoding.
func shouldFallback(status int, raw string) bool {
	if status == http.StatusUnsupportedMediaType {
		return true
	}
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "code") && strings.Contains(lower, "must not be null")
}

// Refresh exchanges refreshToken. Only one alternative encoding is tried, and
// only when the first answer asks for it.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	first := int(c.preferred.Load())
	order := []int{first}
	for i := range refreshStrategies {
		if i != first {
			order = append(order, i)
		}
	}

	var lastErr error
	for attempt, idx := range order[:2] {
		status, raw, err := c.send(ctx, refreshStrategies[idx], refreshToken)
		if err != nil {
			return nil, err
		}
		if status >= 200 && status <= 299 {
			c.preferred.Store(int32(idx))
			return c.parseTokens(raw)
		}
		lastErr = &APIError{Status: status, Path: refreshPath, Raw: raw}
		if attempt == 0 && !shouldFallback(status, raw) {
			break
		}
	}
	return nil, fmt.Errorf("refresh token failed: %w", lastErr)
}

func (c *OAuthClient) send(ctx context.Context, strategy refreshStrategy, refreshToken string) (int, string, error) {
	body, err := strategy.encode(refreshToken, c.clientID)
	if err != nil {
		return 0, "", fmt.Errorf("failed to encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, strings.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", strategy.contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read refresh response: %w", err)
	}
	return resp.StatusCode, string(raw), nil
}

func (c *OAuthClient) parseTokens(raw string) (*models.TokenPair, error) {
	obj, err := decodeObject([]byte(raw))
	if err != nil {
		return nil, err
	}
	pair := &models.TokenPair{
		AccessToken:  StringField(obj, "access_token"),
		RefreshToken: StringField(obj, "refresh_token"),
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access_token")
	}

	if exp, ok := numberField(obj, "access_token_expiration"); ok && exp > 0 {
		pair.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	} else if secs, ok := numberField(obj, "expires_in", "expires"); ok && secs > 0 {
		pair.ExpiresAt = c.now().Add(time.Duration(secs * float64(time.Second))).UTC()
	}
	return pair, nil
}

func numberField(obj map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
