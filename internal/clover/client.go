package clover

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError is any non-2xx response from the POS.
type APIError struct {
	Status int
	Path   string
	Raw    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clover API %s -> %d: %s", e.Path, e.Status, e.Raw)
}

// IsUnauthorized reports whether err is a 401 from the POS.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client talks to the POS REST API. It holds no credentials; every call
// takes the access token to use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a POS client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: newBreaker("clover-api"),
	}
}

// newBreaker opens after consecutive 5xx or transport failures. 4xx answers
// are the caller's problem and do not count.
func newBreaker(name string) *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
	})
}

// BaseURL returns the API host the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// makeRequest sends one request and returns the response body of a 2xx answer.
func (c *Client) makeRequest(ctx context.Context, method, path, accessToken string, payload any, headers map[string]string) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			jsonData, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			body = bytes.NewBuffer(jsonData)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("clover request %s %s failed: %w", method, pathOnly(path), err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read clover response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &APIError{Status: resp.StatusCode, Path: pathOnly(path), Raw: string(raw)}
		}
		return raw, nil
	})
}

func pathOnly(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

// decodeObject unmarshals a JSON object body. An empty body yields an empty object.
func decodeObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode clover response: %w", err)
	}
	return out, nil
}

// decodeElements accepts a bare array or an object wrapping the array under
// "elements" or one of the alternative keys.
func decodeElements(raw []byte, altKeys ...string) ([]map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []map[string]any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to decode clover list: %w", err)
		}
		return list, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode clover list: %w", err)
	}
	for _, key := range append([]string{"elements"}, altKeys...) {
		inner, ok := wrapper[key]
		if !ok {
			continue
		}
		var list []map[string]any
		if err := json.Unmarshal(inner, &list); err == nil {
			return list, nil
		}
	}
	return nil, nil
}

// StringField returns the first of keys holding a non-empty string or number.
func StringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// NestedID returns obj[key]["id"] as a string.
func NestedID(obj map[string]any, key string) string {
	inner, ok := obj[key].(map[string]any)
	if !ok {
		return ""
	}
	return StringField(inner, "id")
}
