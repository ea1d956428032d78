package common

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
)

// ErrorResponse is the error body shared by every endpoint.
type ErrorResponse struct {
	Error          string         `json:"error"`
	NeedsReconnect bool           `json:"needs_reconnect,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

// SendError renders err with the status of its kind.
func SendError(c echo.Context, err error) error {
	kind := KindOf(err)
	resp := ErrorResponse{Error: err.Error()}

	var appErr *AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Details = appErr.Details
	}
	if kind == KindNeedsReconnect {
		resp.Error = ErrNeedsReconnect.Error()
		resp.NeedsReconnect = true
	}
	return c.JSON(StatusFor(kind), resp)
}

// SendClientError sends a 400 with a plain message
func SendClientError(c echo.Context, message string) error {
	return SendError(c, NewValidationError(message, nil))
}

// ParsePositiveID parses a JSON number into a positive integer id.
func ParsePositiveID(raw string, fieldName string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", fieldName)
	}
	value, err := ParsePositiveInteger(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer", fieldName)
	}
	return value, nil
}

// ParsePositiveInteger accepts integral decimal text like "3" or "3.0".
func ParsePositiveInteger(raw string) (int64, error) {
	var f float64
	if _, err := fmt.Sscan(strings.TrimSpace(raw), &f); err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("not a positive integer: %s", raw)
	}
	return int64(f), nil
}

// SafeString safely handles string pointer operations
func SafeString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// GetUserIDFromContext extracts the authenticated user id, if any.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// WithUserID stores the authenticated user id on ctx.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
