package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a failure for the HTTP layer.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConfiguration  ErrorKind = "configuration"
	KindNotFound       ErrorKind = "not_found"
	KindNeedsReconnect ErrorKind = "needs_reconnect"
	KindRemote         ErrorKind = "remote"
	KindPersistence    ErrorKind = "persistence"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUnauthorized   ErrorKind = "unauthorized"
)

var (
	ErrInvalidItems         = errors.New("invalid items")
	ErrUnlinkedProduct      = errors.New("product not linked to POS catalog")
	ErrInvalidModifier      = errors.New("modifier does not belong to product")
	ErrUnlinkedModifier     = errors.New("modifier not linked to POS catalog")
	ErrInvalidPrice         = errors.New("invalid price")
	ErrNeedsReconnect       = errors.New("POS authorization expired, reconnect the account")
	ErrOrderTypeUnavailable = errors.New("pickup order type unavailable")
	ErrConnectionNotFound   = errors.New("POS connection not found for merchant")
)

// AppError carries a kind, a client-facing message and optional details.
type AppError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail attaches a key to the error body and returns the same error.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func NewValidationError(message string, err error) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Err: err}
}

func NewConfigurationError(message string) *AppError {
	return &AppError{Kind: KindConfiguration, Message: message}
}

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Message: message, Err: err}
}

func NewNeedsReconnectError(err error) *AppError {
	return &AppError{Kind: KindNeedsReconnect, Message: ErrNeedsReconnect.Error(), Err: errors.Join(ErrNeedsReconnect, err)}
}

func NewRemoteError(message string, err error) *AppError {
	return &AppError{Kind: KindRemote, Message: message, Err: err}
}

func NewPersistenceError(message string, err error) *AppError {
	return &AppError{Kind: KindPersistence, Message: message, Err: err}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func NewRateLimitedError(message string) *AppError {
	return &AppError{Kind: KindRateLimited, Message: message}
}

// KindOf returns the kind of the first AppError in err's chain.
// Bare ErrNeedsReconnect is recognised; everything else defaults to persistence.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, ErrNeedsReconnect) {
		return KindNeedsReconnect
	}
	return KindPersistence
}

// StatusFor maps an error kind onto its HTTP status.
func StatusFor(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNeedsReconnect, KindUnauthorized:
		return http.StatusUnauthorized
	case KindRemote:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
